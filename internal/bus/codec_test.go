package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamops/streamops/pkg/api"
)

func TestCodec_RoundTrip(t *testing.T) {
	env, err := api.NewEnvelope("api-gateway", api.EventWorkflowCreated, api.WorkflowCreatedPayload{
		WorkflowID: "wf-1",
		Name:       "Pipeline",
		Steps:      []string{"validate"},
		Priority:   api.PriorityLow,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	data, err := EncodeEnvelope(env)
	require.NoError(t, err)

	back, err := DecodeEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, env.EventID, back.EventID)
	require.Equal(t, env.EventType, back.EventType)
	require.Equal(t, env.Metadata, back.Metadata)
	require.JSONEq(t, string(env.Payload), string(back.Payload))
}

func TestCodec_MalformedInput(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	require.Error(t, err)

	// Valid JSON but missing the identity fields is still malformed.
	_, err = DecodeEnvelope([]byte(`{"payload":{}}`))
	require.Error(t, err)
}
