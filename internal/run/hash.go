package run

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainExpectedConfig separates expected-config digests from any other
// content hash. The version suffix allows future algorithm migration.
const DomainExpectedConfig = "runcache/expected-config/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes the content address of the config: node, version and
// canonical document bytes. Two configs with equal digests are interchangeable.
func (e ExpectedConfig) Digest() (string, error) {
	doc := e.Document
	if doc == nil {
		doc = map[string]any{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"node_id":  string(e.NodeID),
		"version":  string(e.Version),
		"document": doc,
	})
	if err != nil {
		return "", fmt.Errorf("digest expected config %s: %w", e.Key(), err)
	}
	return hashWithDomain(DomainExpectedConfig, canonical), nil
}
