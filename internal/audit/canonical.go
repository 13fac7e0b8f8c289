package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// CanonicalVersion identifies the canonical JSON form used for hashing.
// Changing the encoding requires a new version; stored chains are never
// re-hashed.
const CanonicalVersion = 1

// genesis stands in for the previous hash of a chain's first event.
const genesis = "genesis"

// Canonicalize re-encodes a JSON document in canonical form: object keys
// sorted, numbers kept as written, no HTML escaping, no insignificant
// whitespace. It is idempotent.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("canonicalize: trailing data after JSON value")
	}

	return encode(v)
}

// CanonicalizeValue marshals v and returns its canonical form.
func CanonicalizeValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return Canonicalize(raw)
}

func encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// ComputeHash returns hex(SHA-256(canonical + (previous or "genesis"))).
func ComputeHash(canonical []byte, previous *string) string {
	prev := genesis
	if previous != nil {
		prev = *previous
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(prev))
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the hex SHA-256 of v's canonical JSON.
func Digest(v any) (string, error) {
	canonical, err := CanonicalizeValue(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
