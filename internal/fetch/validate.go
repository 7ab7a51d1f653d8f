package fetch

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// MinContentLength is the shortest content accepted from any tier.
	MinContentLength = 100
	// ChallengePrefixLength bounds where challenge signatures are looked for.
	ChallengePrefixLength = 200
)

var (
	ErrTooShort  = errors.New("fetch: content too short or empty")
	ErrChallenge = errors.New("fetch: bot challenge page")
)

// Validator rejects content that is too short or looks like a bot
// challenge. Signatures are only matched in the leading prefix so pages that
// merely mention a captcha further down are kept.
type Validator struct {
	MinLength    int
	PrefixLength int
	Signatures   []string
}

// DefaultValidator returns the validator shared by every fetch tier.
func DefaultValidator() Validator {
	return Validator{
		MinLength:    MinContentLength,
		PrefixLength: ChallengePrefixLength,
		Signatures:   []string{"captcha", "验证"},
	}
}

// Validate returns ErrTooShort, ErrChallenge or nil. Lengths count characters,
// not bytes.
func (v Validator) Validate(content string) error {
	if utf8.RuneCountInString(content) < v.MinLength {
		return ErrTooShort
	}

	prefix := content
	if n := v.PrefixLength; n > 0 {
		i := 0
		for pos := range content {
			if i == n {
				prefix = content[:pos]
				break
			}
			i++
		}
	}
	prefix = strings.ToLower(prefix)

	for _, sig := range v.Signatures {
		if strings.Contains(prefix, strings.ToLower(sig)) {
			return ErrChallenge
		}
	}
	return nil
}
