package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RejectsUnknownShapes(t *testing.T) {
	cases := map[string]any{
		"future schema": `{"v":3,"kind":"simple","action":"Run"}`,
		"unknown kind":  `{"v":2,"kind":"batch","action":"Run"}`,
		"no action":     `{"v":2,"kind":"simple","level":"1"}`,
		"broken json":   `{"v":2,`,
		"empty action":  "t::",
		"number":        42.0,
	}
	for name, val := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(1, val)
			assert.Error(t, err)
		})
	}
}

func TestEncode_RequiresAction(t *testing.T) {
	_, err := Encode(Record{Kind: KindSimple})
	assert.Error(t, err)
}

func TestEncode_SimpleRecordDropsPayload(t *testing.T) {
	raw, err := Encode(Record{Kind: KindSimple, Action: ActionReset, Payload: "<xml/>", Level: "2"})
	require.NoError(t, err)
	assert.NotContains(t, raw, "<xml/>")

	r, err := Decode(9, raw)
	require.NoError(t, err)
	assert.Equal(t, 9, r.Sequence)
	assert.Equal(t, NullPayload, r.WorkspaceState())
	assert.True(t, r.At.IsZero())
}

func TestWorkspaceState_EmptyPayloadIsNull(t *testing.T) {
	r := Record{Kind: KindWorkspace, Action: ActionRun, Level: "1"}
	assert.Equal(t, NullPayload, r.WorkspaceState())

	r.Payload = "<xml/>"
	assert.Equal(t, "<xml/>", r.WorkspaceState())
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "timestamp1", RecordKey(1))
	assert.Equal(t, "timestamp42", RecordKey(42))
}
