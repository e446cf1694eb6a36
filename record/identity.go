package record

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintLen is the number of hex characters kept from the identity hash.
// 32 hex chars = 128 bits, far beyond collision range for any test corpus.
const fingerprintLen = 32

// TestIdentity is the stable identity of one logical test. The fingerprint is
// derived from the fully-qualified name and the parameter signature, so the
// same test produces the same fingerprint on every machine and every run,
// while distinct parameterizations of one method stay distinct.
//
// Identities are created once per discovered test and never mutated.
type TestIdentity struct {
	// Fingerprint is the canonical identity key used everywhere in the
	// engine: history shards, published results, API paths.
	Fingerprint string `json:"fingerprint"`

	// FullName is the fully-qualified test name (namespace + class + method,
	// or package + function — whatever the adapter's framework calls it).
	FullName string `json:"full_name"`

	// ParameterSignature distinguishes parameterized cases of one method.
	// Empty for non-parameterized tests.
	ParameterSignature string `json:"parameter_signature,omitempty"`

	// DisplayName is the human-readable name shown in dashboards.
	// Display metadata never feeds the fingerprint.
	DisplayName string `json:"display_name,omitempty"`
}

// NewIdentity builds a TestIdentity for the given fully-qualified name and
// parameter signature. The display name defaults to fullName.
func NewIdentity(fullName, parameterSignature string) TestIdentity {
	return TestIdentity{
		Fingerprint:        Fingerprint(fullName, parameterSignature),
		FullName:           fullName,
		ParameterSignature: parameterSignature,
		DisplayName:        fullName,
	}
}

// Fingerprint computes the stable identity hash for a test. The two inputs
// are joined with a NUL byte so ("a", "bc") and ("ab", "c") cannot collide.
func Fingerprint(fullName, parameterSignature string) string {
	h := sha256.New()
	h.Write([]byte(fullName))
	h.Write([]byte{0})
	h.Write([]byte(parameterSignature))
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen]
}

// HashText returns a short stable hash of s, used by adapters to fold failure
// messages and stack traces into comparable keys without shipping the text.
// Returns "" for empty input so absent detail stays absent.
func HashText(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
