package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `bank_account_id,date,income,expense,description,payee,memo
acct-1,2025-01-15,100.50,,Salary,ACME,january
acct-1,2025-01-16,,"1,250.00",Rent,Landlord,
,,,,,,
acct-2,2024-12-31,0,12.34,Coffee,,
`

func TestParseCSV(t *testing.T) {
	txs, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, "acct-1", txs[0].BankAccountID)
	assert.True(t, txs[0].Income.Equal(decimal.RequireFromString("100.50")))
	assert.True(t, txs[0].Expense.IsZero())
	assert.Equal(t, "ACME", txs[0].Payee)
	assert.Equal(t, "january", txs[0].Memo)

	assert.True(t, txs[1].Expense.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, 2024, txs[2].Year())
}

func TestParseCSV_ColumnOrderAndOptionalColumns(t *testing.T) {
	in := "date,bank_account_id,expense\n2025-03-01,acct-9,5\n"
	txs, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "acct-9", txs[0].BankAccountID)
	assert.True(t, txs[0].Income.IsZero())
	assert.Empty(t, txs[0].Description)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantLine int
		wantErr  error
	}{
		{name: "empty", in: "", wantErr: ErrEmptyFile},
		{name: "missing date column", in: "bank_account_id,income\nacct,1\n"},
		{name: "bad date", in: "bank_account_id,date\nacct,15/01/2025\n", wantLine: 2},
		{name: "bad amount", in: "bank_account_id,date,income\nacct,2025-01-01,1\nacct,2025-01-02,abc\n", wantLine: 3},
		{name: "negative expense", in: "bank_account_id,date,expense\nacct,2025-01-01,-3\n", wantLine: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantLine > 0 {
				var lineErr *LineError
				require.True(t, errors.As(err, &lineErr), "want *LineError, got %v", err)
				assert.Equal(t, tt.wantLine, lineErr.Line)
			}
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://my-bucket/imports/2025/jan.csv")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "imports/2025/jan.csv", object)

	for _, bad := range []string{"my-bucket/file.csv", "gs://my-bucket", "gs://my-bucket/", "gs:///file.csv"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilenameFromLocation(t *testing.T) {
	assert.Equal(t, "jan.csv", FilenameFromLocation("gs://b/imports/jan.csv"))
	assert.Equal(t, "feb.csv", FilenameFromLocation("/tmp/data/feb.csv"))
}

// MockObjectFetcher is a test double for ObjectFetcher.
type MockObjectFetcher struct {
	FetchObjectFunc func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockObjectFetcher) FetchObject(ctx context.Context, bucket, object string) ([]byte, error) {
	return m.FetchObjectFunc(ctx, bucket, object)
}

func TestImporter_LoadGCS(t *testing.T) {
	var gotBucket, gotObject string
	im := New(&MockObjectFetcher{
		FetchObjectFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
			gotBucket, gotObject = bucket, object
			return []byte(sampleCSV), nil
		},
	})

	txs, err := im.Load(context.Background(), "gs://ledger-imports/jan.csv")
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	assert.Equal(t, "ledger-imports", gotBucket)
	assert.Equal(t, "jan.csv", gotObject)
}

func TestImporter_LoadGCSWithoutClient(t *testing.T) {
	_, err := New(nil).Load(context.Background(), "gs://b/f.csv")
	assert.Error(t, err)
}

func TestImporter_LoadLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	txs, err := New(nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	_, err = New(nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
