// Package gcsuploader archives receipt images in a Cloud Storage bucket.
package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// ReceiptArchive writes receipt images to one bucket with a shared client.
type ReceiptArchive struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewReceiptArchive creates a storage client using Application Default
// Credentials.
func NewReceiptArchive(ctx context.Context, bucket string) (*ReceiptArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewReceiptArchive: create storage client: %w", err)
	}
	return &ReceiptArchive{client: client, bucket: bucket, now: time.Now}, nil
}

// Close closes the storage client.
func (a *ReceiptArchive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// SaveReceiptImage uploads data and returns its gs:// URI.
func (a *ReceiptArchive) SaveReceiptImage(ctx context.Context, userID string, data []byte, contentType, ext string) (string, error) {
	objectName := ReceiptObjectName(userID, a.now(), uuid.NewString(), ext)
	if err := UploadBytes(ctx, a.client, a.bucket, objectName, contentType, data); err != nil {
		return "", fmt.Errorf("SaveReceiptImage: %w", err)
	}
	return "gs://" + a.bucket + "/" + objectName, nil
}

// ReceiptObjectName lays receipts out as receipts/<user>/<yyyy>/<mm>/<dd>/<id><ext>.
func ReceiptObjectName(userID string, at time.Time, id, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	user := strings.NewReplacer("/", "_", "..", "_").Replace(userID)
	return path.Join("receipts", user, at.UTC().Format("2006/01/02"), id+ext)
}

// UploadBytes writes data to bucket/objectName.
func UploadBytes(ctx context.Context, client *storage.Client, bucket, objectName, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// FetchFromGCS downloads the object bytes for a gs:// URI.
func FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading bytes: %w", err)
	}
	return data, nil
}
