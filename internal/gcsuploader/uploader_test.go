package gcsuploader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptObjectName(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

	tests := []struct {
		name   string
		userID string
		ext    string
		want   string
	}{
		{"jpeg", "user-1", ".jpg", "receipts/user-1/2024/03/09/abc.jpg"},
		{"ext without dot", "user-1", "png", "receipts/user-1/2024/03/09/abc.png"},
		{"no ext", "user-1", "", "receipts/user-1/2024/03/09/abc"},
		{"slashes in user", "a/../b", ".pdf", "receipts/a___b/2024/03/09/abc.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReceiptObjectName(tt.userID, at, "abc", tt.ext))
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://my-bucket/receipts/u/2024/01/02/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "receipts/u/2024/01/02/x.jpg", object)

	for _, bad := range []string{"", "s3://bucket/x", "gs://bucket", "gs://bucket/", "gs:///x"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}
