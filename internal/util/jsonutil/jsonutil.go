package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	// fenced block anywhere in the text, with or without a language tag
	reFenced = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
	// runs of 10+ fractional digits; keep the first 4
	reLongFraction = regexp.MustCompile(`(\d+\.\d{4})\d{6,}`)
)

// StripFences removes markdown code fences around a model reply. When the
// reply is prose with an embedded fenced block, the first block wins.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if m := reFenced.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unterminated fence
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if i := strings.IndexByte(t, '\n'); i >= 0 {
			t = t[i+1:]
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(t, "```"))
}

// TruncateLongFractions cuts every number with 10 or more fractional digits
// down to 4. Digits are dropped, not rounded.
func TruncateLongFractions(s string) string {
	return reLongFraction.ReplaceAllString(s, "$1")
}

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnescapeUnicodeString converts JSON unicode escapes like "\u003e" into actual characters.
func UnescapeUnicodeString(s string) (string, error) {
	esc := strings.ReplaceAll(s, `\`, `\\`)
	esc = strings.ReplaceAll(esc, `"`, `\"`)
	var out string
	if err := json.Unmarshal([]byte(`"`+esc+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

// NormalizeJSONUnicode parses JSON bytes, unwrapping up to two levels of
// string-encoded JSON, and unescapes double-escaped unicode inside strings.
func NormalizeJSONUnicode(raw []byte) ([]byte, error) {
	var anyVal any
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		s, ok := anyVal.(string)
		if !ok {
			break
		}
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, errors.New("NormalizeJSONUnicode: cannot parse JSON payload")
		}
		anyVal = inner
	}
	return MarshalNoEscape(deepUnescape(anyVal))
}

// UnmarshalFlex tries a direct unmarshal first, then a normalized one.
// Models sometimes return a JSON string holding the JSON document.
func UnmarshalFlex(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	norm, nerr := NormalizeJSONUnicode(raw)
	if nerr != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		if s, err := UnescapeUnicodeString(x); err == nil {
			return s
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepUnescape(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = deepUnescape(vv)
		}
		return out
	default:
		return v
	}
}
