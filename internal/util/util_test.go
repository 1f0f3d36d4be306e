package util

import (
	"strings"
	"testing"
)

func TestMaskToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "ab"},
		{"abc", "a...c"},
		{"abcde", "ab...de"},
		{"abcdefghij", "abcd...ghij"},
	}
	for _, tc := range cases {
		if got := MaskToken(tc.in); got != tc.want {
			t.Fatalf("MaskToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskSensitiveQueryMasksFlowParams(t *testing.T) {
	raw := "code=0123456789abcdef&state=fedcba9876543210&purpose=login"
	masked := MaskSensitiveQuery(raw)
	if masked == raw {
		t.Fatal("expected code and state to be masked")
	}
	if !strings.Contains(masked, "purpose=login") {
		t.Fatalf("masked query %q lost the plain param", masked)
	}
	if strings.Contains(masked, "0123456789abcdef") || strings.Contains(masked, "fedcba9876543210") {
		t.Fatalf("masked query %q still carries raw values", masked)
	}
}

func TestMaskSensitiveQueryLeavesPlainParams(t *testing.T) {
	raw := "purpose=bind&role=solver"
	if got := MaskSensitiveQuery(raw); got != raw {
		t.Fatalf("query %q changed to %q", raw, got)
	}
}
