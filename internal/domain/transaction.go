package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/shopspring/decimal"
)

// Collection names in the document store.
const (
	BankAccountsCollection      = "bankAccounts"
	TransactionsCollection      = "transactions"
	TransactionSplitsCollection = "transactionSplits"
)

// Field names shared by queries and document mapping.
const (
	FieldBankAccountID   = "bankAccountId"
	FieldTransactionDate = "transactionDate"
	FieldReferenceNumber = "referenceNumber"
	FieldTransactionID   = "transactionId"
	FieldCreatedAt       = "createdAt"
	FieldUpdatedAt       = "updatedAt"
)

// BankAccount is the metadata the ledger needs about an account.
type BankAccount struct {
	ID             string
	Name           string
	AccountNumber  string
	CurrentBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Token returns the last four characters of the account number, zero padded.
// It scopes generated reference numbers and must not change for the lifetime
// of the account.
func (a BankAccount) Token() string {
	n := []rune(strings.TrimSpace(a.AccountNumber))
	if len(n) >= TokenLength {
		return string(n[len(n)-TokenLength:])
	}
	return strings.Repeat("0", TokenLength-len(n)) + string(n)
}

// ToDocument maps the account to its stored shape.
func (a BankAccount) ToDocument() map[string]interface{} {
	return map[string]interface{}{
		"name":           a.Name,
		"accountNumber":  a.AccountNumber,
		"currentBalance": a.CurrentBalance.InexactFloat64(),
		FieldCreatedAt:   timestampOrServer(a.CreatedAt),
		FieldUpdatedAt:   docstore.ServerTimestamp,
	}
}

// BankAccountFromDocument maps a stored document back to a BankAccount.
func BankAccountFromDocument(doc docstore.Document) *BankAccount {
	return &BankAccount{
		ID:             doc.ID,
		Name:           doc.String("name"),
		AccountNumber:  doc.String("accountNumber"),
		CurrentBalance: decimal.NewFromFloat(doc.Float("currentBalance")),
		CreatedAt:      doc.Time(FieldCreatedAt),
		UpdatedAt:      doc.Time(FieldUpdatedAt),
	}
}

// PendingTransaction is a transaction submitted for ingestion. It has no
// reference number yet.
type PendingTransaction struct {
	BankAccountID string          `json:"bank_account_id"`
	Date          time.Time       `json:"date"`
	Income        decimal.Decimal `json:"income"`
	Expense       decimal.Decimal `json:"expense"`
	Description   string          `json:"description"`
	Payee         string          `json:"payee,omitempty"`
	Memo          string          `json:"memo,omitempty"`
}

// ErrInvalidTransaction is wrapped by Validate failures.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Validate checks the fields the store cannot enforce.
func (p PendingTransaction) Validate() error {
	if strings.TrimSpace(p.BankAccountID) == "" {
		return fmt.Errorf("%w: bank account id is required", ErrInvalidTransaction)
	}
	if p.Date.IsZero() {
		return fmt.Errorf("%w: transaction date is required", ErrInvalidTransaction)
	}
	if p.Income.IsNegative() {
		return fmt.Errorf("%w: income must not be negative", ErrInvalidTransaction)
	}
	if p.Expense.IsNegative() {
		return fmt.Errorf("%w: expense must not be negative", ErrInvalidTransaction)
	}
	return nil
}

// HasSingleAmount reports whether exactly one of income and expense is
// non-zero. This is a convention only and is not enforced.
func (p PendingTransaction) HasSingleAmount() bool {
	return p.Income.IsZero() != p.Expense.IsZero()
}

// Year is the fiscal year the transaction is numbered in.
func (p PendingTransaction) Year() int {
	return p.Date.Year()
}

// Transaction is a persisted ledger entry.
type Transaction struct {
	ID              string          `json:"id"`
	BankAccountID   string          `json:"bank_account_id"`
	Date            time.Time       `json:"date"`
	Income          decimal.Decimal `json:"income"`
	Expense         decimal.Decimal `json:"expense"`
	Description     string          `json:"description"`
	Payee           string          `json:"payee,omitempty"`
	Memo            string          `json:"memo,omitempty"`
	ReferenceNumber string          `json:"reference_number"`

	// NeedsReview is set when the reference number came from fallback
	// numbering and must be checked by an operator.
	NeedsReview  bool   `json:"needs_review,omitempty"`
	ReviewReason string `json:"review_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTransaction builds a transaction from a pending one and its allocated number.
func NewTransaction(id string, p PendingTransaction, referenceNumber string) Transaction {
	return Transaction{
		ID:              id,
		BankAccountID:   p.BankAccountID,
		Date:            p.Date,
		Income:          p.Income,
		Expense:         p.Expense,
		Description:     p.Description,
		Payee:           p.Payee,
		Memo:            p.Memo,
		ReferenceNumber: referenceNumber,
	}
}

// ToDocument maps the transaction to its stored shape. Timestamps are
// assigned by the server.
func (t Transaction) ToDocument() map[string]interface{} {
	doc := map[string]interface{}{
		FieldBankAccountID:   t.BankAccountID,
		FieldTransactionDate: t.Date,
		"incomeAmount":       t.Income.InexactFloat64(),
		"expenseAmount":      t.Expense.InexactFloat64(),
		"description":        t.Description,
		FieldReferenceNumber: t.ReferenceNumber,
		FieldCreatedAt:       timestampOrServer(t.CreatedAt),
		FieldUpdatedAt:       docstore.ServerTimestamp,
	}
	if t.Payee != "" {
		doc["payee"] = t.Payee
	}
	if t.Memo != "" {
		doc["memo"] = t.Memo
	}
	if t.NeedsReview {
		doc["needsReview"] = true
		doc["reviewReason"] = t.ReviewReason
	}
	return doc
}

// TransactionFromDocument maps a stored document back to a Transaction.
func TransactionFromDocument(doc docstore.Document) Transaction {
	return Transaction{
		ID:              doc.ID,
		BankAccountID:   doc.String(FieldBankAccountID),
		Date:            doc.Time(FieldTransactionDate),
		Income:          decimal.NewFromFloat(doc.Float("incomeAmount")),
		Expense:         decimal.NewFromFloat(doc.Float("expenseAmount")),
		Description:     doc.String("description"),
		Payee:           doc.String("payee"),
		Memo:            doc.String("memo"),
		ReferenceNumber: doc.String(FieldReferenceNumber),
		NeedsReview:     doc.Bool("needsReview"),
		ReviewReason:    doc.String("reviewReason"),
		CreatedAt:       doc.Time(FieldCreatedAt),
		UpdatedAt:       doc.Time(FieldUpdatedAt),
	}
}

// TransactionSplit allocates part of a transaction to a category. It is
// owned by its transaction and is deleted before it.
type TransactionSplit struct {
	ID            string
	TransactionID string
	Index         int
	Amount        decimal.Decimal
	Category      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ToDocument maps the split to its stored shape.
func (s TransactionSplit) ToDocument() map[string]interface{} {
	return map[string]interface{}{
		FieldTransactionID: s.TransactionID,
		"splitIndex":       s.Index,
		"amount":           s.Amount.InexactFloat64(),
		"category":         s.Category,
		FieldCreatedAt:     timestampOrServer(s.CreatedAt),
		FieldUpdatedAt:     docstore.ServerTimestamp,
	}
}

// TransactionSplitFromDocument maps a stored document back to a split.
func TransactionSplitFromDocument(doc docstore.Document) TransactionSplit {
	return TransactionSplit{
		ID:            doc.ID,
		TransactionID: doc.String(FieldTransactionID),
		Index:         doc.Int("splitIndex"),
		Amount:        decimal.NewFromFloat(doc.Float("amount")),
		Category:      doc.String("category"),
		CreatedAt:     doc.Time(FieldCreatedAt),
		UpdatedAt:     doc.Time(FieldUpdatedAt),
	}
}

func timestampOrServer(t time.Time) interface{} {
	if t.IsZero() {
		return docstore.ServerTimestamp
	}
	return t
}
