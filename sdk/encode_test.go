package sdk

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

func TestSummarizeString(t *testing.T) {
	out := Summarize("hello world", trace.DetailSummary)

	assert.Equal(t, "str", out["_type"])
	assert.Equal(t, "hello world", out["_value"])
	assert.Equal(t, 11, out["_length"])
	assert.Equal(t, false, out["_truncated"])
}

func TestSummarizeLongStringTruncated(t *testing.T) {
	long := strings.Repeat("x", maxStringLength+100)
	out := Summarize(long, trace.DetailSummary)

	assert.Equal(t, true, out["_truncated"])
	assert.Equal(t, len(long), out["_length"])
	value := out["_value"].(string)
	assert.Len(t, value, maxStringLength+3)
	assert.True(t, strings.HasSuffix(value, "..."))
}

func TestSummarizeNil(t *testing.T) {
	out := Summarize(nil, trace.DetailSummary)
	assert.Equal(t, "null", out["_type"])
}

func TestSummarizeCandidateList(t *testing.T) {
	candidates := []map[string]any{
		{"id": "cat-1", "score": 4.0, "reason": "keyword match"},
		{"id": "cat-2", "score": 2.5},
		{"id": "cat-3", "confidence": 0.9, "other": "ignored"},
	}

	out := Summarize(candidates, trace.DetailSummary)

	assert.Equal(t, "candidates", out["_type"])
	assert.Equal(t, 3, out["_count"])

	got := out["_candidates"].([]map[string]any)
	require.Len(t, got, 3)
	assert.Equal(t, "cat-1", got[0]["id"])
	assert.Equal(t, 4.0, got[0]["score"])
	assert.Equal(t, "keyword match", got[0]["reason"])
	assert.Nil(t, got[1]["reason"])
	// confidence is an accepted score field.
	assert.Equal(t, 0.9, got[2]["score"])
}

func TestSummarizePlainListNotSampledAsCandidates(t *testing.T) {
	out := Summarize([]int{1, 2, 3, 4}, trace.DetailSummary)

	assert.Equal(t, "list", out["_type"])
	assert.Equal(t, 4, out["_count"])
	assert.NotContains(t, out, "_candidates")
}

func TestSummarizeMapKeysAndScalars(t *testing.T) {
	out := Summarize(map[string]any{
		"threshold": 2,
		"method":    "tokenize",
		"nested":    map[string]any{"deep": true},
	}, trace.DetailSummary)

	assert.Equal(t, "dict", out["_type"])
	assert.Equal(t, 3, out["_key_count"])
	assert.ElementsMatch(t, []string{"threshold", "method", "nested"}, out["_keys"])

	values := out["_values"].(map[string]any)
	assert.Equal(t, 2, values["threshold"])
	assert.Equal(t, "tokenize", values["method"])
	// Non-scalar values record only their type.
	nested := values["nested"].(map[string]any)
	assert.Contains(t, nested["_type"], "map")
}

func TestSummarizeDepthBounded(t *testing.T) {
	deep := any("leaf")
	for i := 0; i < maxPayloadDepth+3; i++ {
		deep = []any{deep}
	}

	// Must terminate and stay serializable.
	out := Summarize(deep, trace.DetailSummary)
	_, err := json.Marshal(out)
	require.NoError(t, err)
}

func TestSummarizeFullKeepsPayload(t *testing.T) {
	payload := map[string]any{"title": "widget", "count": 3}
	out := Summarize(payload, trace.DetailFull)

	raw, ok := out["_value"].(json.RawMessage)
	require.True(t, ok)

	var back map[string]any
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "widget", back["title"])
}

func TestSummarizeFullCapsOversized(t *testing.T) {
	payload := map[string]any{"blob": strings.Repeat("a", maxFullBytes)}
	out := Summarize(payload, trace.DetailFull)

	assert.Equal(t, true, out["_truncated"])
	assert.Greater(t, out["_bytes"].(int), maxFullBytes)
	assert.Len(t, out["_value"].(string), maxFullBytes)
}

func TestBoundReasoningPreservesSmallPayload(t *testing.T) {
	m := map[string]any{"decision": "keep", "score_gap": 1.5}
	out := BoundReasoning(m, trace.DetailSummary)
	assert.Equal(t, m, out)
}

func TestBoundReasoningTruncatesOversized(t *testing.T) {
	m := map[string]any{"blob": strings.Repeat("a", maxSummaryReasoningBytes+1)}

	out := BoundReasoning(m, trace.DetailSummary)
	assert.Equal(t, true, out["_truncated"])

	// Full detail allows more headroom.
	out = BoundReasoning(m, trace.DetailFull)
	assert.Equal(t, m, out)
}

func TestSummarizeUnserializableFailsOpen(t *testing.T) {
	out := Summarize(map[string]any{"fn": func() {}}, trace.DetailFull)
	assert.Contains(t, out, "_error")
}
