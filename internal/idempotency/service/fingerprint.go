package service

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint hashes a JSON payload after canonicalizing key order and
// whitespace, so semantically equal payloads share a fingerprint.
func Fingerprint(payload []byte) string {
	canonical := canonicalize(payload)
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func canonicalize(payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return trimmed
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		return trimmed
	}
	return out
}
