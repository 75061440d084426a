package pipeline

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes caps a decoded receipt image.
const MaxImageBytes = 15 << 20

// Image is a decoded upload.
type Image struct {
	Data     []byte
	MIMEType string
	// Extension includes the leading dot, e.g. ".jpg".
	Extension string
}

// DecodeImage accepts a base64 data URI ("data:image/png;base64,...") or bare
// base64 and sniffs the real content type. Only images and PDFs are allowed.
func DecodeImage(encoded string) (*Image, error) {
	payload := strings.TrimSpace(encoded)
	if payload == "" {
		return nil, fmt.Errorf("DecodeImage: empty image: %w", ErrInvalidInput)
	}

	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, fmt.Errorf("DecodeImage: malformed data URI: %w", ErrInvalidInput)
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("DecodeImage: data URI is not base64 encoded: %w", ErrInvalidInput)
		}
		payload = data
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("DecodeImage: decoding base64: %v: %w", err, ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("DecodeImage: empty image: %w", ErrInvalidInput)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("DecodeImage: image is %d bytes, limit is %d: %w", len(data), MaxImageBytes, ErrInvalidInput)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") && !mt.Is("application/pdf") {
		return nil, fmt.Errorf("DecodeImage: unsupported content type %s: %w", mt.String(), ErrInvalidInput)
	}

	return &Image{
		Data:      data,
		MIMEType:  mt.String(),
		Extension: mt.Extension(),
	}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)

	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
