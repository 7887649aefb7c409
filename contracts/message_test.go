package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeCorrelationID(t *testing.T) {
	t.Run("reads a float-decoded tag", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{FieldExtra: float64(12)}}

		id, ok := env.CorrelationID()
		assert.True(t, ok)
		assert.Equal(t, uint64(12), id)
	})

	t.Run("reads a json.Number tag", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{FieldExtra: json.Number("98765")}}

		id, ok := env.CorrelationID()
		assert.True(t, ok)
		assert.Equal(t, uint64(98765), id)
	})

	t.Run("reads a string tag", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{FieldExtra: "31"}}

		id, ok := env.CorrelationID()
		assert.True(t, ok)
		assert.Equal(t, uint64(31), id)
	})

	t.Run("absent tag", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{}}

		_, ok := env.CorrelationID()
		assert.False(t, ok)
	})

	t.Run("negative tag is rejected", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{FieldExtra: float64(-1)}}

		_, ok := env.CorrelationID()
		assert.False(t, ok)
	})

	t.Run("non-numeric string tag is rejected", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{FieldExtra: "abc"}}

		_, ok := env.CorrelationID()
		assert.False(t, ok)
	})
}

func TestEnvelopeClientID(t *testing.T) {
	t.Run("reads the session id", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{FieldClientID: float64(3)}}

		id, ok := env.ClientID()
		assert.True(t, ok)
		assert.Equal(t, ClientID(3), id)
	})

	t.Run("absent session id", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{}}

		_, ok := env.ClientID()
		assert.False(t, ok)
	})
}

func TestEnvelopeErrorFields(t *testing.T) {
	t.Run("reads code and message", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{
			FieldCode:    float64(429),
			FieldMessage: "Too many requests: retry after 5",
		}}

		code, ok := env.ErrorCode()
		assert.True(t, ok)
		assert.Equal(t, CodeTooManyRequests, code)
		assert.Equal(t, "Too many requests: retry after 5", env.ErrorMessage())
	})

	t.Run("absent error fields", func(t *testing.T) {
		env := &Envelope{Fields: map[string]interface{}{"result": "ok"}}

		_, ok := env.ErrorCode()
		assert.False(t, ok)
		assert.Equal(t, "", env.ErrorMessage())
	})
}

func TestEnvelopeTypeName(t *testing.T) {
	env := &Envelope{Fields: map[string]interface{}{FieldType: "updateNewMessage"}}
	assert.Equal(t, "updateNewMessage", env.TypeName())

	empty := &Envelope{Fields: map[string]interface{}{}}
	assert.Equal(t, "", empty.TypeName())
}
