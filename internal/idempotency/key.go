package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenerateKey derives a deterministic SHA-256 key from the semantic content
// of a request. Maps marshal with sorted keys, so two logically identical
// requests hash identically regardless of field order in the input.
func GenerateKey(operationType string, data, contextData map[string]any) (string, error) {
	envelope := map[string]any{
		"operation": operationType,
		"data":      data,
		"context":   contextData,
	}
	canonical, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("canonicalize request: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashPayload returns the SHA-256 of a raw request body, stored alongside
// the key for diagnostics.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
