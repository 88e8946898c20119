package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// fingerprintDomain separates admission fingerprints from any other SHA-256
// use of the same inputs. The version suffix allows future algorithm
// migration without colliding with existing claims.
const fingerprintDomain = "skillflow/admission/v1"

// Fingerprint computes a deterministic idempotency key for an (intent,
// payload) pair: the hex SHA-256 digest of the canonical JSON encoding of
// {intent, payload}. Object keys are serialized in lexicographic order at
// every nesting level, so two semantically identical submissions collapse to
// the same key regardless of field ordering.
func Fingerprint(intent string, payload map[string]any) (string, error) {
	canonical, err := canonicalJSON(map[string]any{
		"intent":  intent,
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize submission: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00}) // separator prevents domain/data boundary ambiguity
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON produces a key-order-independent JSON encoding. The value is
// round-tripped through encoding/json so structs and json.RawMessage inputs
// normalize to maps, whose keys encoding/json serializes sorted.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}

	return json.Marshal(normalized)
}
