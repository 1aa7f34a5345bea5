// Package handler contains the event handlers registered by the reverser server.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tsarna/reverser/pkg/reverser/dispatch"
	"github.com/tsarna/reverser/pkg/reverser/reverse"
	"github.com/tsarna/reverser/pkg/reverser/wire"
)

// Register installs the reverse_input handlers on router. Plain
// reverse_input events use defaultUnit; reverse_input/<unit> selects the
// unit per event.
func Register(router *dispatch.Router, defaultUnit reverse.Unit) error {
	if err := router.Handle(wire.EventReverseInput, NewReverseHandler(defaultUnit)); err != nil {
		return err
	}
	return router.Handle(wire.EventReverseInputUnitPattern, NewReverseHandler(defaultUnit))
}

// NewReverseHandler returns a handler that replies to an input event with
// its text reversed. A "unit" field extracted from the event name overrides
// defaultUnit.
func NewReverseHandler(defaultUnit reverse.Unit) dispatch.HandlerFunc {
	return func(ctx context.Context, ev dispatch.Event) (*wire.Message, error) {
		unit := defaultUnit
		if name, ok := ev.Fields["unit"]; ok {
			if name == "" {
				return nil, fmt.Errorf("%w: empty unit in event name %q", dispatch.ErrMalformedPayload, ev.Name)
			}
			parsed, err := reverse.ParseUnit(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", dispatch.ErrMalformedPayload, err)
			}
			unit = parsed
		}

		text, err := decodeText(ev.Data)
		if err != nil {
			return nil, err
		}

		msg, err := wire.NewMessage(wire.EventResponse, wire.ResponsePayload{
			Reversed: unit.Func()(text),
		})
		if err != nil {
			return nil, err
		}
		return &msg, nil
	}
}

func decodeText(data json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", fmt.Errorf("%w: payload must be an object", dispatch.ErrMalformedPayload)
	}

	var payload wire.InputPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return "", fmt.Errorf("%w: %w", dispatch.ErrMalformedPayload, err)
	}
	if payload.Text == nil {
		return "", fmt.Errorf("%w: text is required", dispatch.ErrMalformedPayload)
	}

	return *payload.Text, nil
}
