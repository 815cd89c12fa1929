// Package importer reads pending transactions from CSV files stored locally
// or in Cloud Storage.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/shopspring/decimal"
)

// DateLayout is the expected format of the date column.
const DateLayout = "2006-01-02"

// Column names. bank_account_id and date are required; the rest may be absent.
const (
	ColumnBankAccountID = "bank_account_id"
	ColumnDate          = "date"
	ColumnIncome        = "income"
	ColumnExpense       = "expense"
	ColumnDescription   = "description"
	ColumnPayee         = "payee"
	ColumnMemo          = "memo"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("importer: empty file")

// LineError reports a row that could not be parsed.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ParseCSV reads a header row followed by one transaction per row. Columns are
// matched by header name, so their order is free. Blank lines are skipped.
// The first malformed row aborts parsing with a *LineError.
func ParseCSV(r io.Reader) ([]domain.PendingTransaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("ParseCSV: reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{ColumnBankAccountID, ColumnDate} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("ParseCSV: missing required column %q", required)
		}
	}

	var out []domain.PendingTransaction
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ParseCSV: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(record) {
			continue
		}

		p, err := parseRecord(record, cols)
		if err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		out = append(out, p)
	}
	return out, nil
}

func parseRecord(record []string, cols map[string]int) (domain.PendingTransaction, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, err := time.Parse(DateLayout, field(ColumnDate))
	if err != nil {
		return domain.PendingTransaction{}, fmt.Errorf("invalid date %q", field(ColumnDate))
	}
	income, err := parseAmount(field(ColumnIncome))
	if err != nil {
		return domain.PendingTransaction{}, fmt.Errorf("invalid income: %w", err)
	}
	expense, err := parseAmount(field(ColumnExpense))
	if err != nil {
		return domain.PendingTransaction{}, fmt.Errorf("invalid expense: %w", err)
	}

	p := domain.PendingTransaction{
		BankAccountID: field(ColumnBankAccountID),
		Date:          date,
		Income:        income,
		Expense:       expense,
		Description:   field(ColumnDescription),
		Payee:         field(ColumnPayee),
		Memo:          field(ColumnMemo),
	}
	if err := p.Validate(); err != nil {
		return domain.PendingTransaction{}, err
	}
	return p, nil
}

// parseAmount treats an empty cell as zero and tolerates thousands separators.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
