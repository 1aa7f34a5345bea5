package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("event with payload and id", func(t *testing.T) {
		msg, err := Decode([]byte(`{"t":"reverse_input","d":{"text":"hi"},"i":3}`))
		require.NoError(t, err)
		assert.Equal(t, EventReverseInput, msg.Event)
		assert.JSONEq(t, `{"text":"hi"}`, string(msg.Data))
		assert.Equal(t, float64(3), msg.Id)
	})

	t.Run("event without payload", func(t *testing.T) {
		msg, err := Decode([]byte(`{"t":"reverse_input"}`))
		require.NoError(t, err)
		assert.Nil(t, msg.Data)
		assert.Nil(t, msg.Id)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := Decode([]byte(`{"t":`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON frame")
	})

	t.Run("missing event name", func(t *testing.T) {
		_, err := Decode([]byte(`{"d":{"text":"hi"}}`))
		assert.ErrorIs(t, err, ErrMissingEvent)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := Decode([]byte(`"hello"`))
		assert.Error(t, err)
	})
}

func TestNewMessageEncode(t *testing.T) {
	msg, err := NewMessage(EventResponse, ResponsePayload{Reversed: "olleh"})
	require.NoError(t, err)
	msg.Id = "abc"

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"response","d":{"reversed":"olleh"},"i":"abc"}`, string(data))
}

func TestNewMessageEmptyReversed(t *testing.T) {
	msg, err := NewMessage(EventResponse, ResponsePayload{})
	require.NoError(t, err)

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"response","d":{"reversed":""}}`, string(data))
}

func TestNewMessageUnencodable(t *testing.T) {
	_, err := NewMessage(EventResponse, make(chan int))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), EventResponse)
}
