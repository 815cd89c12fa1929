package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultReferencePrefix starts every generated reference number.
	DefaultReferencePrefix = "TXN"

	// TokenLength is the length of the bank account token.
	TokenLength = 4

	// SequenceDigits is the zero-padded width of the sequence part.
	SequenceDigits = 4

	// FallbackToken replaces the account token on numbers produced without
	// a successful allocation. It can never collide with a real token query
	// because real tokens are scoped per account in the allocation query.
	FallbackToken = "XXXX"
)

// ReferenceNumber is a parsed PREFIX-YYYY-TOKN-NNNN reference.
type ReferenceNumber struct {
	Prefix   string
	Year     int
	Token    string
	Sequence int
}

// String formats the reference number.
func (r ReferenceNumber) String() string {
	return fmt.Sprintf("%s-%04d-%s-%0*d", r.Prefix, r.Year, r.Token, SequenceDigits, r.Sequence)
}

// ScopePrefix returns "PREFIX-YYYY-TOKN-", the common prefix of every number
// in one (account, year) scope.
func ScopePrefix(prefix string, year int, token string) string {
	return fmt.Sprintf("%s-%04d-%s-", prefix, year, token)
}

// ParseReferenceNumber parses s as a number in the given scope. Only exactly
// four decimal digits are accepted after the scope prefix.
func ParseReferenceNumber(s, prefix string, year int, token string) (ReferenceNumber, error) {
	scope := ScopePrefix(prefix, year, token)
	if !strings.HasPrefix(s, scope) {
		return ReferenceNumber{}, fmt.Errorf("reference number %q is outside scope %q", s, scope)
	}
	seq := strings.TrimPrefix(s, scope)
	if len(seq) != SequenceDigits {
		return ReferenceNumber{}, fmt.Errorf("reference number %q: sequence must be %d digits", s, SequenceDigits)
	}
	for _, r := range seq {
		if r < '0' || r > '9' {
			return ReferenceNumber{}, fmt.Errorf("reference number %q: sequence is not numeric", s)
		}
	}
	n, err := strconv.Atoi(seq)
	if err != nil {
		return ReferenceNumber{}, fmt.Errorf("reference number %q: %w", s, err)
	}
	return ReferenceNumber{Prefix: prefix, Year: year, Token: token, Sequence: n}, nil
}
