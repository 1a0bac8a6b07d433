package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuery  = "bifrost/query/v1"
	DomainReport = "bifrost/report/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QueryFingerprint identifies a query evaluation input: the dialect and the
// normalized query text. Identical inputs always produce the same fingerprint.
func QueryFingerprint(dialect, text string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"dialect": dialect,
		"text":    text,
	})
	if err != nil {
		return "", fmt.Errorf("QueryFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}

// ReportHash hashes a canonical resolution report.
func ReportHash(report map[string]any) (string, error) {
	canonical, err := MarshalCanonical(report)
	if err != nil {
		return "", fmt.Errorf("ReportHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainReport, canonical), nil
}
