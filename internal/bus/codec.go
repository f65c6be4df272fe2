package bus

import (
	"encoding/json"
	"fmt"

	"github.com/streamops/streamops/pkg/api"
)

// EncodeEnvelope serializes an envelope to its JSON wire form.
func EncodeEnvelope(env api.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEnvelope parses the JSON wire form back into an envelope. A
// malformed body is a protocol error: consumers log it and drop the
// message rather than crash the consume loop.
func DecodeEnvelope(data []byte) (api.Envelope, error) {
	var env api.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return api.Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.EventType == "" || env.EventID == "" {
		return api.Envelope{}, fmt.Errorf("malformed envelope: missing eventType or eventId")
	}
	return env, nil
}
