package ir

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFingerprint_Deterministic(t *testing.T) {
	a, err := QueryFingerprint("mysql", "SELECT t1.col FROM t1")
	require.NoError(t, err)
	b, err := QueryFingerprint("mysql", "SELECT t1.col FROM t1")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	raw, err := hex.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestQueryFingerprint_ChangesWithInput(t *testing.T) {
	base, err := QueryFingerprint("mysql", "SELECT t1.col FROM t1")
	require.NoError(t, err)

	otherDialect, err := QueryFingerprint("sqlite", "SELECT t1.col FROM t1")
	require.NoError(t, err)
	assert.NotEqual(t, base, otherDialect)

	otherText, err := QueryFingerprint("mysql", "SELECT t1.other FROM t1")
	require.NoError(t, err)
	assert.NotEqual(t, base, otherText)
}

func TestReportHash(t *testing.T) {
	report := map[string]any{"validator": "permissive", "scopes": 1}

	a, err := ReportHash(report)
	require.NoError(t, err)
	b, err := ReportHash(map[string]any{"scopes": 1, "validator": "permissive"})
	require.NoError(t, err)
	assert.Equal(t, a, b, "key order must not matter")

	_, err = ReportHash(map[string]any{"bad": 0.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReportHash")
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"dialect":"mysql","text":"SELECT 1"}`)
	assert.NotEqual(t, hashWithDomain(DomainQuery, data), hashWithDomain(DomainReport, data))
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// Without the separator "ab"+"c" and "a"+"bc" would collide.
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}
