package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelab/stagechat/pkg/llm"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	s, _, _ := newTestSession(t, testSimConfig(),
		llm.NewMockClient(testDecision), llm.NewMockClient("text"))

	require.NoError(t, r.Add(s))
	assert.Equal(t, s, r.Get("test-session"))
	assert.Error(t, r.Add(s), "duplicate id")
	assert.Equal(t, []string{"test-session"}, r.List())

	r.Remove("test-session", "cleanup")
	assert.Nil(t, r.Get("test-session"))
	assert.Empty(t, r.List())

	// Removing an unknown id is a no-op.
	r.Remove("ghost", "cleanup")
}

func TestRegistryStopAll(t *testing.T) {
	r := NewRegistry()
	a, _, _ := newTestSession(t, testSimConfig(),
		llm.NewMockClient(testDecision), llm.NewMockClient("text"))
	require.NoError(t, r.Add(a))

	r.StopAll("shutdown")
	assert.Empty(t, r.List())
}
