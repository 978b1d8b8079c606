package sdk

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// Summarization limits. Payloads are bounded so a single step can never
// hold an arbitrary amount of buffer or network capacity.
const (
	maxStringLength = 1024
	maxMapKeys      = 50
	maxPayloadDepth = 5

	// maxFullBytes caps the encoded size of a full-detail payload.
	maxFullBytes = 64 * 1024

	// maxSummaryReasoningBytes bounds reasoning payloads at summary detail.
	maxSummaryReasoningBytes = 8 * 1024
)

// idFields are common identifier field names checked when detecting
// candidate lists.
var idFields = []string{"id", "_id", "candidate_id", "item_id", "product_id", "doc_id"}

var scoreFields = []string{"score", "rank", "relevance", "confidence", "weight"}

var reasonFields = []string{"reason", "explanation", "rationale", "why", "filter_reason"}

// Summarize converts an arbitrary payload into a bounded, JSON-serializable
// descriptor map. It never fails: values that cannot be serialized are
// replaced with an "_error" marker so the fail-open property holds
// end-to-end.
//
// At DetailSummary the payload is reduced to counts, keys, and truncated
// samples. At DetailFull the payload is preserved as given, capped at
// maxFullBytes with an explicit truncation marker.
func Summarize(v any, detail trace.DetailLevel) map[string]any {
	if detail == trace.DetailFull {
		return summarizeFull(v)
	}
	return summarizeValue(v, 0)
}

// summarizeFull keeps the payload intact up to the hard byte cap.
func summarizeFull(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"_error": fmt.Sprintf("unserializable payload: %v", err)}
	}

	if len(data) <= maxFullBytes {
		return map[string]any{"_value": json.RawMessage(data)}
	}

	// Oversized: truncated, never dropped silently.
	return map[string]any{
		"_truncated": true,
		"_bytes":     len(data),
		"_value":     string(data[:maxFullBytes]),
	}
}

// BoundReasoning enforces the detail level's size bound on a reasoning
// payload while keeping its structure intact. Oversized payloads are
// truncated with a marker, never dropped silently; unserializable ones
// are replaced with an error marker.
func BoundReasoning(m map[string]any, detail trace.DetailLevel) map[string]any {
	if m == nil {
		return nil
	}

	limit := maxSummaryReasoningBytes
	if detail == trace.DetailFull {
		limit = maxFullBytes
	}

	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{"_error": fmt.Sprintf("unserializable reasoning: %v", err)}
	}
	if len(data) <= limit {
		return m
	}
	return map[string]any{
		"_truncated": true,
		"_bytes":     len(data),
		"_value":     string(data[:limit]),
	}
}

// summarizeValue reduces a value to a typed descriptor map. The shape
// mirrors the wire format consumers already parse: "_type" plus
// type-specific fields.
func summarizeValue(v any, depth int) map[string]any {
	if depth >= maxPayloadDepth {
		return map[string]any{"_type": typeName(v), "_truncated": true}
	}

	if v == nil {
		return map[string]any{"_type": "null", "_value": nil}
	}

	switch val := v.(type) {
	case bool:
		return map[string]any{"_type": "bool", "_value": val}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return map[string]any{"_type": typeName(v), "_value": val}
	case string:
		return summarizeString(val)
	case []byte:
		return map[string]any{"_type": "bytes", "_length": len(val)}
	case error:
		return summarizeString(val.Error())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return map[string]any{"_type": "null", "_value": nil}
		}
		return summarizeValue(rv.Elem().Interface(), depth)

	case reflect.Slice, reflect.Array:
		return summarizeList(rv, depth)

	case reflect.Map:
		return summarizeMap(rv)

	default:
		out := map[string]any{"_type": typeName(v)}
		// Identify structs that carry an ID field.
		if rv.Kind() == reflect.Struct {
			if f := rv.FieldByName("ID"); f.IsValid() && f.Kind() == reflect.String {
				out["_id"] = f.String()
			}
		}
		return out
	}
}

func summarizeString(s string) map[string]any {
	truncated := len(s) > maxStringLength
	value := s
	if truncated {
		value = s[:maxStringLength] + "..."
	}
	return map[string]any{
		"_type":      "str",
		"_length":    len(s),
		"_value":     value,
		"_truncated": truncated,
	}
}

// summarizeList reduces a slice. Candidate lists (elements carrying an
// identifier field) keep every element's id, score, and reason: for a
// decision pipeline the identity of what survived each step is the whole
// point, so candidates are never sampled.
func summarizeList(rv reflect.Value, depth int) map[string]any {
	count := rv.Len()

	if candidates, ok := extractCandidates(rv); ok {
		return map[string]any{
			"_type":       "candidates",
			"_count":      count,
			"_candidates": candidates,
		}
	}

	out := map[string]any{
		"_type":  "list",
		"_count": count,
	}
	if count > 0 {
		out["_item_type"] = typeName(rv.Index(0).Interface())
	}
	return out
}

// extractCandidates returns id/score/reason descriptors when rv looks like
// a list of candidate maps. The first few elements decide.
func extractCandidates(rv reflect.Value) ([]map[string]any, bool) {
	if rv.Len() == 0 {
		return nil, false
	}

	sample := rv.Len()
	if sample > 3 {
		sample = 3
	}
	for i := 0; i < sample; i++ {
		m, ok := asStringMap(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		if _, found := firstPresent(m, idFields); !found {
			return nil, false
		}
	}

	candidates := make([]map[string]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		m, ok := asStringMap(rv.Index(i).Interface())
		if !ok {
			continue
		}
		c := map[string]any{}
		if id, found := firstPresent(m, idFields); found {
			c["id"] = id
		}
		if score, found := firstPresent(m, scoreFields); found {
			c["score"] = score
		}
		if reason, found := firstPresent(m, reasonFields); found {
			c["reason"] = reason
		} else {
			c["reason"] = nil
		}
		candidates = append(candidates, c)
	}
	return candidates, true
}

func summarizeMap(rv reflect.Value) map[string]any {
	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, fmt.Sprint(iter.Key().Interface()))
		if len(keys) >= maxMapKeys {
			break
		}
	}

	out := map[string]any{
		"_type":      "dict",
		"_key_count": rv.Len(),
		"_keys":      keys,
	}
	if rv.Len() > maxMapKeys {
		out["_keys_truncated"] = true
	}

	// Scalar values are kept inline; anything deeper only records its type.
	values := map[string]any{}
	m, _ := asStringMap(rv.Interface())
	for _, k := range keys {
		v := m[k]
		switch tv := v.(type) {
		case nil, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			values[k] = v
		case string:
			if len(tv) > maxStringLength {
				values[k] = tv[:maxStringLength] + "..."
			} else {
				values[k] = tv
			}
		default:
			values[k] = map[string]any{"_type": typeName(v)}
		}
	}
	out["_values"] = values
	return out
}

// asStringMap converts map-like values to map[string]any.
func asStringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func firstPresent(m map[string]any, fields []string) (any, bool) {
	for _, f := range fields {
		if v, ok := m[f]; ok {
			return v, true
		}
	}
	return nil, false
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return reflect.TypeOf(v).String()
}
