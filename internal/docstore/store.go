// Package docstore describes the document-oriented datastore the ledger is
// persisted in. The Store interface mirrors the subset of Cloud Firestore the
// ingestion engine relies on so that tests can run against an in-memory copy.
package docstore

import (
	"context"
	"errors"
	"time"
)

const (
	// MaxBatchWrites is the ceiling on operations in a single atomic commit.
	MaxBatchWrites = 500

	// MaxInValues is the maximum number of values accepted by an "in" filter.
	MaxInValues = 10
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrBatchTooLarge is returned by Commit when more than MaxBatchWrites writes are submitted.
	ErrBatchTooLarge = errors.New("docstore: batch exceeds maximum write count")

	// ErrTooManyInValues is returned by Query when an "in" filter carries more than MaxInValues values.
	ErrTooManyInValues = errors.New("docstore: too many values in 'in' filter")
)

type serverTimestamp struct{}

// ServerTimestamp can be used as a field value in Add, Set, Update and Commit
// data. The backend replaces it with the time the write was applied.
var ServerTimestamp = serverTimestamp{}

// Operator is a query predicate operator.
type Operator string

const (
	OpEqual          Operator = "=="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpIn             Operator = "in"
)

// Filter is a single field predicate. For OpIn, Value must be a []string.
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
}

// Where builds a Filter.
func Where(field string, op Operator, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Direction is a sort direction for OrderBy.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// QueryOptions holds optional ordering and limit settings.
type QueryOptions struct {
	OrderField string
	OrderDir   Direction
	Limit      int
}

// QueryOption mutates QueryOptions.
type QueryOption func(*QueryOptions)

// OrderBy sorts results by field.
func OrderBy(field string, dir Direction) QueryOption {
	return func(o *QueryOptions) {
		o.OrderField = field
		o.OrderDir = dir
	}
}

// Limit caps the number of returned documents.
func Limit(n int) QueryOption {
	return func(o *QueryOptions) {
		o.Limit = n
	}
}

// ApplyQueryOptions folds opts into a QueryOptions value.
func ApplyQueryOptions(opts []QueryOption) QueryOptions {
	var o QueryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Document is a stored record.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// String returns the string field or "" when absent or of another type.
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Time returns the time field or the zero time.
func (d Document) Time(field string) time.Time {
	t, _ := d.Data[field].(time.Time)
	return t
}

// Float returns the numeric field as float64.
func (d Document) Float(field string) float64 {
	switch v := d.Data[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Int returns the numeric field as int.
func (d Document) Int(field string) int {
	switch v := d.Data[field].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns the boolean field or false.
func (d Document) Bool(field string) bool {
	b, _ := d.Data[field].(bool)
	return b
}

// WriteOp is the kind of operation inside an atomic commit.
type WriteOp string

const (
	// OpInsert writes the full document, replacing any existing one with the same ID.
	OpInsert WriteOp = "insert"
	// OpUpdate merges Data into an existing document.
	OpUpdate WriteOp = "update"
	// OpDelete removes the document.
	OpDelete WriteOp = "delete"
)

// Write is one operation of an atomic commit. An empty ID on OpInsert asks
// the backend to allocate one.
type Write struct {
	Op         WriteOp
	Collection string
	ID         string
	Data       map[string]interface{}
}

// Store is the datastore collaborator used by the ingestion engine.
type Store interface {
	// Get fetches a document by ID. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns all documents matching every filter.
	Query(ctx context.Context, collection string, filters []Filter, opts ...QueryOption) ([]Document, error)

	// Add inserts a document under a generated ID and returns that ID.
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)

	// Set writes a document under id, replacing any existing content.
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error

	// Update merges data into an existing document.
	Update(ctx context.Context, collection, id string, data map[string]interface{}) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Commit applies all writes atomically. At most MaxBatchWrites writes are accepted.
	Commit(ctx context.Context, writes []Write) error

	// Close releases backend resources.
	Close() error
}
