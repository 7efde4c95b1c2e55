package password

import (
	"math"
	"strings"
	"unicode"
)

// Strength is a coarse five-tier quality bucket derived from the entropy
// estimate.
type Strength int

const (
	VeryWeak Strength = iota
	Weak
	Fair
	Strong
	VeryStrong
)

func (s Strength) String() string {
	switch s {
	case VeryWeak:
		return "very_weak"
	case Weak:
		return "weak"
	case Fair:
		return "fair"
	case Strong:
		return "strong"
	case VeryStrong:
		return "very_strong"
	default:
		return "unknown"
	}
}

// Policy configures strength assessment. Zero fields fall back to defaults.
type Policy struct {
	MinLength int
	MaxLength int
	// MinClasses is the number of character classes (lower, upper, digit,
	// symbol) a password must cover.
	MinClasses int
	// ExtraCommon extends the built-in common-password set.
	ExtraCommon []string
}

const (
	defaultMinLength  = 10
	defaultMaxLength  = 128
	defaultMinClasses = 3
)

func (p Policy) withDefaults() Policy {
	if p.MinLength <= 0 {
		p.MinLength = defaultMinLength
	}
	if p.MaxLength <= 0 {
		p.MaxLength = defaultMaxLength
	}
	if p.MinClasses <= 0 {
		p.MinClasses = defaultMinClasses
	}
	return p
}

// Assessment is the result of AssessStrength. Errors lists every violated
// rule; Valid is false when any rule failed. The candidate password itself
// is never retained.
type Assessment struct {
	Valid    bool
	Errors   []string
	Strength Strength
	Entropy  float64
}

// Entropy thresholds in bits for the five tiers.
const (
	entropyWeak       = 28
	entropyFair       = 36
	entropyStrong     = 60
	entropyVeryStrong = 90
)

// AssessStrength checks password against the vault policy and estimates its
// entropy from effective character-set size and length.
func (v *Vault) AssessStrength(password string) Assessment {
	p := v.policy
	var errs []string

	length := len(password)
	if length < p.MinLength {
		errs = append(errs, "password too short")
	}
	if length > p.MaxLength {
		errs = append(errs, "password too long")
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	classes := 0
	charset := 0
	if lower {
		classes++
		charset += 26
	}
	if upper {
		classes++
		charset += 26
	}
	if digit {
		classes++
		charset += 10
	}
	if symbol {
		classes++
		charset += 33
	}
	if classes < p.MinClasses {
		errs = append(errs, "insufficient character variety")
	}

	if hasLongRun(password) {
		errs = append(errs, "too many identical consecutive characters")
	}

	if v.isCommon(password) {
		errs = append(errs, "password is too common")
	}

	entropy := 0.0
	if charset > 0 {
		entropy = float64(length) * math.Log2(float64(charset))
	}

	strength := VeryStrong
	switch {
	case v.isCommon(password) || entropy < entropyWeak:
		strength = VeryWeak
	case entropy < entropyFair:
		strength = Weak
	case entropy < entropyStrong:
		strength = Fair
	case entropy < entropyVeryStrong:
		strength = Strong
	}

	return Assessment{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Strength: strength,
		Entropy:  entropy,
	}
}

// hasLongRun reports whether any character repeats more than twice in a row.
func hasLongRun(password string) bool {
	run := 0
	var prev rune = -1
	for _, r := range password {
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

func (v *Vault) isCommon(password string) bool {
	candidate := strings.ToLower(password)
	if _, ok := commonPasswords[candidate]; ok {
		return true
	}
	for _, extra := range v.policy.ExtraCommon {
		if candidate == strings.ToLower(extra) {
			return true
		}
	}
	return false
}
