package domain

import (
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankAccount_Token(t *testing.T) {
	tests := []struct {
		number string
		want   string
	}{
		{"123456789012", "9012"},
		{"12", "0012"},
		{"", "0000"},
		{" 4567 ", "4567"},
		{"DE12ü", "E12ü"},
		{"№", "000№"},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			got := BankAccount{AccountNumber: tt.number}.Token()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, TokenLength, utf8.RuneCountInString(got))
		})
	}
}

func TestReferenceNumber_RoundTrip(t *testing.T) {
	for _, seq := range []int{1, 42, 999, 9999} {
		ref := ReferenceNumber{Prefix: "TXN", Year: 2025, Token: "0012", Sequence: seq}
		parsed, err := ParseReferenceNumber(ref.String(), "TXN", 2025, "0012")
		require.NoError(t, err)
		assert.Equal(t, seq, parsed.Sequence)
	}
	assert.Equal(t, "TXN-2025-0012-0001", ReferenceNumber{Prefix: "TXN", Year: 2025, Token: "0012", Sequence: 1}.String())
}

func TestParseReferenceNumber_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"other year", "TXN-2024-0012-0001"},
		{"other token", "TXN-2025-0013-0001"},
		{"five digits", "TXN-2025-0012-00001"},
		{"three digits", "TXN-2025-0012-001"},
		{"non numeric", "TXN-2025-0012-00a1"},
		{"signed", "TXN-2025-0012-+001"},
		{"fallback", "TXN-2025-XXXX-1736000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReferenceNumber(tt.input, "TXN", 2025, "0012")
			assert.Error(t, err)
		})
	}
}

func TestPendingTransaction_Validate(t *testing.T) {
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	valid := PendingTransaction{BankAccountID: "acc", Date: date, Income: decimal.NewFromInt(10)}
	require.NoError(t, valid.Validate())
	assert.True(t, valid.HasSingleAmount())

	noAccount := valid
	noAccount.BankAccountID = " "
	assert.True(t, errors.Is(noAccount.Validate(), ErrInvalidTransaction))

	noDate := valid
	noDate.Date = time.Time{}
	assert.Error(t, noDate.Validate())

	negative := valid
	negative.Expense = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())

	both := valid
	both.Expense = decimal.NewFromInt(5)
	assert.NoError(t, both.Validate())
	assert.False(t, both.HasSingleAmount())
}

func TestTransaction_DocumentMapping(t *testing.T) {
	date := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	tx := Transaction{
		ID:              "t1",
		BankAccountID:   "acc",
		Date:            date,
		Expense:         decimal.RequireFromString("12.5"),
		Description:     "Hall rental",
		ReferenceNumber: "TXN-2025-0012-0003",
		NeedsReview:     true,
		ReviewReason:    "store unavailable",
	}

	data := tx.ToDocument()
	assert.Equal(t, docstore.ServerTimestamp, data[FieldCreatedAt])
	assert.NotContains(t, data, "payee")

	back := TransactionFromDocument(docstore.Document{ID: "t1", Data: data})
	assert.Equal(t, "acc", back.BankAccountID)
	assert.Equal(t, date, back.Date)
	assert.True(t, back.Expense.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "TXN-2025-0012-0003", back.ReferenceNumber)
	assert.True(t, back.NeedsReview)
}

func TestNewProgress(t *testing.T) {
	assert.Equal(t, 33, NewProgress(PhaseIngest, 1, 3).Percentage)
	assert.Equal(t, 100, NewProgress(PhaseIngest, 3, 3).Percentage)
	assert.Equal(t, 100, NewProgress(PhaseIngest, 0, 0).Percentage)
}

func TestResult_Merge(t *testing.T) {
	r := Result{Success: 2}
	r.Merge(Result{Success: 1, Failed: 3, Errors: []string{"chunk 2 failed"}})
	r.Fail(1, "id x failed")
	assert.Equal(t, 3, r.Success)
	assert.Equal(t, 4, r.Failed)
	assert.Equal(t, 7, r.Total())
	assert.Len(t, r.Errors, 2)
}
