package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotReflectsObservations(t *testing.T) {
	s := New()
	s.ObserveTool("send_email", 120*time.Millisecond, true)
	s.ObserveTool("send_email", 80*time.Millisecond, false)
	s.ObserveStage("rag", 10*time.Millisecond)
	s.CacheHit()
	s.CacheMiss()
	s.CacheSize(3)
	s.ObserveVoice(SegmentSTT, 400*time.Millisecond)

	snap := s.Snapshot()

	invocations := snap["tool_invocations_total"].([]map[string]any)
	require.Len(t, invocations, 1)
	assert.Equal(t, "send_email", invocations[0]["tool"])
	assert.Equal(t, 2.0, invocations[0]["value"])

	failures := snap["tool_failures_total"].([]map[string]any)
	assert.Equal(t, 1.0, failures[0]["value"])

	latency := snap["tool_latency_seconds"].([]map[string]any)
	assert.Equal(t, uint64(2), latency[0]["count"])

	size := snap["embedding_cache_size"].([]map[string]any)
	assert.Equal(t, 3.0, size[0]["value"])
}
