// Package dispatch maps inbound event names to their handlers.
//
// Handlers are registered once at startup and the table is read-only
// afterwards, so a single Router can be shared by every connection without
// locking.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/tsarna/reverser/pkg/reverser/wire"
)

var (
	// ErrNoHandler is returned by Dispatch for events nobody registered.
	ErrNoHandler = errors.New("no handler for event")

	// ErrMalformedPayload is returned by handlers whose payload fails validation.
	// No reply is sent for such events.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Event is an inbound event as seen by a handler.
type Event struct {
	Name   string
	Data   json.RawMessage
	Id     any
	Fields map[string]string // Values of named wildcards, e.g. "+unit"
}

// HandlerFunc handles one event and returns the reply to send back to the
// same connection. A nil reply with a nil error sends nothing.
type HandlerFunc func(ctx context.Context, ev Event) (*wire.Message, error)

type patternRoute struct {
	pattern string
	extract bool
	handler HandlerFunc
}

// Router is the event name -> handler table.
type Router struct {
	exact    map[string]HandlerFunc
	patterns []patternRoute
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		exact: make(map[string]HandlerFunc),
	}
}

func isPattern(name string) bool {
	return strings.ContainsAny(name, "+#")
}

// Handle registers handler for an event name. Names containing MQTT-style
// wildcards ("+", "#", "+name") are matched as patterns; exact names always
// take precedence over patterns, and patterns are tried in registration order.
func (r *Router) Handle(name string, handler HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("event name is required")
	}
	if handler == nil {
		return fmt.Errorf("handler for %q is nil", name)
	}

	if !isPattern(name) {
		if _, exists := r.exact[name]; exists {
			return fmt.Errorf("handler for %q already registered", name)
		}
		r.exact[name] = handler
		return nil
	}

	for _, route := range r.patterns {
		if route.pattern == name {
			return fmt.Errorf("handler for %q already registered", name)
		}
	}

	r.patterns = append(r.patterns, patternRoute{
		pattern: name,
		extract: mqttpattern.HasExtractions(name),
		handler: handler,
	})

	return nil
}

// Events returns the registered names and patterns, sorted.
func (r *Router) Events() []string {
	names := make([]string, 0, len(r.exact)+len(r.patterns))
	for name := range r.exact {
		names = append(names, name)
	}
	for _, route := range r.patterns {
		names = append(names, route.pattern)
	}
	sort.Strings(names)
	return names
}

func (r *Router) lookup(name string) (string, HandlerFunc, map[string]string, bool) {
	if handler, ok := r.exact[name]; ok {
		return name, handler, nil, true
	}

	for _, route := range r.patterns {
		if !mqttpattern.Matches(route.pattern, name) {
			continue
		}
		if route.extract {
			return route.pattern, route.handler, mqttpattern.Extract(route.pattern, name), true
		}
		return route.pattern, route.handler, nil, true
	}

	return "", nil, nil, false
}

// Route returns the registered name or pattern that an event name resolves
// to. Useful as a bounded label for metrics.
func (r *Router) Route(name string) (string, bool) {
	route, _, _, ok := r.lookup(name)
	return route, ok
}

// Dispatch runs the handler registered for msg and returns its reply. The
// inbound correlation id, if any, is copied onto the reply.
func (r *Router) Dispatch(ctx context.Context, msg wire.Message) (*wire.Message, error) {
	_, handler, fields, ok := r.lookup(msg.Event)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, msg.Event)
	}

	reply, err := handler(ctx, Event{
		Name:   msg.Event,
		Data:   msg.Data,
		Id:     msg.Id,
		Fields: fields,
	})
	if err != nil {
		return nil, err
	}

	if reply != nil && msg.Id != nil {
		reply.Id = msg.Id
	}

	return reply, nil
}
