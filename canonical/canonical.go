// Package canonical produces the byte form that signatures and HMACs are
// computed over: JSON with object keys sorted lexicographically, no
// insignificant whitespace, and no HTML escaping.
package canonical

import (
	"bytes"
	"encoding/json"

	"vey.dev/pidcore/errs"
)

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return Without(v)
}

// Without returns the canonical JSON encoding of v with the named top-level
// members removed. v must encode to a JSON object when fields are given.
func Without(v any, fields ...string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.Parse, "CANON-ENC-001", "canonical: marshal", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, errs.Wrap(errs.Parse, "CANON-ENC-002", "canonical: decode", err)
	}
	if len(fields) > 0 {
		obj, ok := generic.(map[string]any)
		if !ok {
			return nil, errs.New(errs.Parse, "CANON-ENC-003", "canonical: value is not an object")
		}
		for _, f := range fields {
			delete(obj, f)
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, errs.Wrap(errs.Parse, "CANON-ENC-004", "canonical: encode", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
