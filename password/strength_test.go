package password

import (
	"strings"
	"testing"
)

func TestAssessStrength_Rules(t *testing.T) {
	v := testVault(t)

	cases := []struct {
		name     string
		password string
		valid    bool
		wantErr  string
	}{
		{"too short", "Ab1!xyz", false, "too short"},
		{"too long", strings.Repeat("Ab1!", 40), false, "too long"},
		{"single class", "abcdefghijkl", false, "character variety"},
		{"long identical run", "Gooodnight-Moon7", false, "identical consecutive"},
		{"common password", "Password123", false, "too common"},
		{"acceptable", "Tangible-Quartz-91", true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := v.AssessStrength(tc.password)
			if got.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", got.Valid, tc.valid, got.Errors)
			}
			if tc.wantErr == "" {
				return
			}
			found := false
			for _, e := range got.Errors {
				if strings.Contains(e, tc.wantErr) {
					found = true
				}
			}
			if !found {
				t.Fatalf("errors %v missing %q", got.Errors, tc.wantErr)
			}
		})
	}
}

func TestAssessStrength_CommonIsCaseInsensitive(t *testing.T) {
	v := testVault(t)

	got := v.AssessStrength("PASSWORD123")
	if got.Valid {
		t.Fatal("uppercased common password must still be rejected")
	}
	if got.Strength != VeryWeak {
		t.Fatalf("common password strength = %v, want VeryWeak", got.Strength)
	}
}

func TestAssessStrength_Tiers(t *testing.T) {
	v := testVault(t)

	cases := []struct {
		password string
		want     Strength
	}{
		{"aaa1", VeryWeak},                          // 4 chars, tiny entropy
		{"abc12x", Weak},                            // 6 lower+digit ≈ 31 bits
		{"abcd123xyz", Fair},                        // 10 lower+digit ≈ 52 bits
		{"Abcd123xyzQ!", Strong},                    // 12 over full charset ≈ 79 bits
		{"Abcd123xyzQ!mN0pR#", VeryStrong},          // 18 over full charset ≈ 118 bits
	}

	for _, tc := range cases {
		got := v.AssessStrength(tc.password)
		if got.Strength != tc.want {
			t.Fatalf("AssessStrength(%q).Strength = %v (%.1f bits), want %v",
				tc.password, got.Strength, got.Entropy, tc.want)
		}
	}
}

func TestAssessStrength_RunDetection(t *testing.T) {
	if !hasLongRun("aaab") {
		t.Fatal("three identical consecutive characters must be detected")
	}
	if hasLongRun("aabaa") {
		t.Fatal("runs of two are allowed")
	}
	if hasLongRun("") {
		t.Fatal("empty string has no runs")
	}
}
