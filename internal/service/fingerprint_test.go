package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	first := Fingerprint("Test Case ID TC-1")
	second := Fingerprint("Test Case ID TC-1")
	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestFingerprintKnownValue(t *testing.T) {
	require.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Fingerprint("hello"))
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	require.NotEqual(t, Fingerprint("plan a"), Fingerprint("plan b"))
}
