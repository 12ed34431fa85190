package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"grimm.is/hearth/internal/settings"
)

const (
	alphaLower = "abcdefghijklmnopqrstuvwxyz"
	alphaUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numeric    = "0123456789"
)

// PasswordPolicy defines password requirements
type PasswordPolicy struct {
	MinLength       int    // 0 disables the length check
	Regex           string // Replaces the character class checks when set
	AlphaLower      bool
	AlphaUpper      bool
	Numeric         bool
	SpecialRequired bool
	SpecialChars    string
}

// PolicyFromSettings reads the panel.password_* settings.
func PolicyFromSettings(s *settings.Store) PasswordPolicy {
	return PasswordPolicy{
		MinLength:       int(s.Int("panel.password_min_length")),
		Regex:           s.Get("panel.password_regex"),
		AlphaLower:      s.Bool("panel.password_alpha_lower"),
		AlphaUpper:      s.Bool("panel.password_alpha_upper"),
		Numeric:         s.Bool("panel.password_numeric"),
		SpecialRequired: s.Bool("panel.password_special_char_required"),
		SpecialChars:    s.Get("panel.password_special_char"),
	}
}

// PolicyError is a rejected password. Key is the message catalog key.
type PolicyError struct {
	Key  string
	Args []any
}

func (e *PolicyError) Error() string {
	if e.Key == "notrequiredpasswordlength" {
		return "password is too short"
	}
	return "password does not meet the complexity requirements"
}

// ValidatePassword checks password against the policy.
func ValidatePassword(password string, policy PasswordPolicy) error {
	if policy.MinLength > 0 && len([]rune(password)) < policy.MinLength {
		return &PolicyError{Key: "notrequiredpasswordlength", Args: []any{policy.MinLength}}
	}

	complexity := &PolicyError{Key: "notrequiredpasswordcomplexity"}
	if policy.Regex != "" {
		re, err := CompilePolicyRegex(policy.Regex)
		if err != nil || !re.MatchString(password) {
			return complexity
		}
		return nil
	}

	if policy.AlphaLower && !strings.ContainsAny(password, alphaLower) {
		return complexity
	}
	if policy.AlphaUpper && !strings.ContainsAny(password, alphaUpper) {
		return complexity
	}
	if policy.Numeric && !strings.ContainsAny(password, numeric) {
		return complexity
	}
	if policy.SpecialRequired && !strings.ContainsAny(password, policy.SpecialChars) {
		return complexity
	}
	return nil
}

// GeneratePassword builds a random password satisfying policy. Its length
// is MinLength when that is above 3, else 10. A quarter of the length is
// reserved for each required class (upper, numeric, special); lowercase
// fills the rest.
func GeneratePassword(policy PasswordPolicy) string {
	length := 10
	if policy.MinLength > 3 {
		length = policy.MinLength
	}
	n := length / 4

	var pw []rune
	if policy.AlphaUpper {
		pw = append(pw, pick(alphaUpper, n)...)
	}
	if policy.Numeric {
		pw = append(pw, pick(numeric, n)...)
	}
	if policy.SpecialRequired && policy.SpecialChars != "" {
		pw = append(pw, pick(policy.SpecialChars, n)...)
	}
	for len(pw) < length {
		pw = append(pw, pick(alphaLower, 1)...)
	}
	shuffle(pw)
	return string(pw)
}

func pick(charset string, n int) []rune {
	chars := []rune(charset)
	out := make([]rune, n)
	for i := range out {
		out[i] = chars[randInt(len(chars))]
	}
	return out
}

func shuffle(r []rune) {
	for i := len(r) - 1; i > 0; i-- {
		j := randInt(i + 1)
		r[i], r[j] = r[j], r[i]
	}
}

func randInt(max int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return int(v.Int64())
}

// SplitDelimited takes apart a delimited pattern such as "/^[a-z]+$/i"
// into its body and trailing flags. Patterns without a leading delimiter
// are returned unchanged.
func SplitDelimited(raw string) (body, flags string) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return raw, ""
	}
	delim := raw[0]
	if delim != '/' && delim != '#' && delim != '~' && delim != '!' {
		return raw, ""
	}
	end := strings.LastIndexByte(raw, delim)
	if end == 0 {
		return raw, ""
	}
	return raw[1:end], raw[end+1:]
}

// CompilePolicyRegex compiles the panel.password_regex setting. The i, m
// and s flags map onto inline flags; any other flag is an error.
func CompilePolicyRegex(raw string) (*regexp.Regexp, error) {
	body, flags := SplitDelimited(raw)
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			inline.WriteRune(f)
		default:
			return nil, fmt.Errorf("unsupported pattern flag %q", f)
		}
	}
	if inline.Len() > 0 {
		body = "(?" + inline.String() + ")" + body
	}
	return regexp.Compile(body)
}
