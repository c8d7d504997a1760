// Package canonical produces RFC 8785 canonical JSON for quote parameters so
// that signing and later re-pricing operate on byte-identical input.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Marshal returns the canonical JSON encoding of v. Map keys are sorted and
// numbers use their shortest form, so 3 and 3.0 encode identically.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// Params encodes a parameter map. A nil map encodes as "{}".
func Params(params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	b, err := Marshal(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeParams is the inverse of Params. Numbers decode as json.Number.
func DecodeParams(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical: decode params: %w", err)
	}
	return out, nil
}

// Normalize round-trips params through the canonical form and returns both
// the encoding and the decoded map pricing should read.
func Normalize(params map[string]any) (string, map[string]any, error) {
	enc, err := Params(params)
	if err != nil {
		return "", nil, err
	}
	dec, err := DecodeParams(enc)
	if err != nil {
		return "", nil, err
	}
	return enc, dec, nil
}

func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
