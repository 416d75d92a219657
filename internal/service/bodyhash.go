package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// CanonicalBody returns the form of a request body that gets hashed.
// Valid JSON is re-encoded compactly with sorted object keys, unescaped
// HTML characters and numbers kept as written; anything else is returned as is.
func CanonicalBody(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return raw
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return raw
	}
	// Encode appends a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// BodyHash is the SHA-256 of the canonical body, base64url without padding.
func BodyHash(raw []byte) string {
	sum := sha256.Sum256(CanonicalBody(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
