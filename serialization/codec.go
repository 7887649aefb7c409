package serialization

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/enginemux/enginemux-go/contracts"
)

var defaultConfig = sonic.ConfigStd

// Marshal serializes v into the engine's JSON wire form.
func Marshal(v interface{}) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

// Unmarshal deserializes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return defaultConfig.Unmarshal(data, v)
}

// DecodeEnvelope decodes one raw engine document into an Envelope. A failure
// here means the document is not structured data at all, which breaks the
// transport contract.
func DecodeEnvelope(data []byte) (*contracts.Envelope, error) {
	var fields map[string]interface{}
	if err := defaultConfig.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrMalformedMessage, err)
	}

	return &contracts.Envelope{Raw: data, Fields: fields}, nil
}
