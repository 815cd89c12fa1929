package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/logger"
)

// ObjectFetcher downloads the bytes of a Cloud Storage object.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// GCSFetcher reads objects through a shared storage client.
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher creates a storage client using Application Default Credentials.
func NewGCSFetcher(ctx context.Context) (*GCSFetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSFetcher: creating storage client: %w", err)
	}
	return &GCSFetcher{client: client}, nil
}

// FetchObject implements ObjectFetcher.
func (f *GCSFetcher) FetchObject(ctx context.Context, bucket, object string) ([]byte, error) {
	rc, err := f.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchObject: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchObject: reading bytes: %w", err)
	}
	return data, nil
}

// UploadFile copies a local file to bucket/object.
func (f *GCSFetcher) UploadFile(ctx context.Context, bucket, object, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := f.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("UploadFile: copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("UploadFile: finalize upload: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (f *GCSFetcher) Close() error {
	return f.client.Close()
}

var _ ObjectFetcher = (*GCSFetcher)(nil)

// ParseGCSURI splits gs://bucket/path/to/file.csv into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromLocation returns the base name of a local path or gs:// URI.
func FilenameFromLocation(location string) string {
	if _, object, err := ParseGCSURI(location); err == nil {
		return path.Base(object)
	}
	return path.Base(location)
}

// Importer loads pending transactions from a local path or a gs:// URI.
type Importer struct {
	objects ObjectFetcher
}

// New returns an Importer. objects may be nil when only local files are read.
func New(objects ObjectFetcher) *Importer {
	return &Importer{objects: objects}
}

// Load reads and parses the CSV at location.
func (im *Importer) Load(ctx context.Context, location string) ([]domain.PendingTransaction, error) {
	log := logger.FromContext(ctx)

	var data []byte
	if strings.HasPrefix(location, "gs://") {
		if im.objects == nil {
			return nil, fmt.Errorf("Load: no storage client configured for %s", location)
		}
		bucket, object, err := ParseGCSURI(location)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		data, err = im.objects.FetchObject(ctx, bucket, object)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
	} else {
		var err error
		data, err = os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("Load: reading %q: %w", location, err)
		}
	}

	txs, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("Load: parsing %s: %w", FilenameFromLocation(location), err)
	}

	log.Info().
		Str("file", FilenameFromLocation(location)).
		Int("bytes", len(data)).
		Int("transactions", len(txs)).
		Msg("Loaded transactions from CSV")

	return txs, nil
}
