package fingerprint

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// encode writes v as JSON with object keys sorted. Values reaching here are
// already normalized, so encoding cannot fail.
func encode(v any) []byte {
	return appendValue(nil, v)
}

func appendValue(buf []byte, v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		return appendObject(buf, val)
	case []any:
		buf = append(buf, '[')
		for i, inner := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendValue(buf, inner)
		}
		return append(buf, ']')
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return appendValue(buf, normalizeFloat(val))
		}
	case opaqueValue:
		return append(buf, val...)
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return append(buf, b...)
}

func appendObject(buf []byte, m map[string]any) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = appendValue(buf, m[k])
	}
	return append(buf, '}')
}

// opaqueValue is pre-encoded JSON for option values outside the supported
// set.
type opaqueValue []byte

func opaque(v any) opaqueValue {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return opaqueValue(b)
}
