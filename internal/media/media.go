// Package media validates and uploads post attachments.
package media

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pulseboard/feedmirror/internal/remote"
)

// MaxFileSize is the upper bound for a single attachment.
const MaxFileSize = 10 << 20

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// File is one attachment submitted with a draft.
type File struct {
	Name string
	Data []byte
}

// Validate checks the size bound and sniffs the content type against the
// whitelist. The declared name is not trusted.
func Validate(f File) (string, error) {
	if len(f.Data) == 0 {
		return "", &remote.ValidationError{Reason: fmt.Sprintf("file %s is empty", f.Name)}
	}

	if len(f.Data) > MaxFileSize {
		return "", &remote.ValidationError{Reason: fmt.Sprintf("file %s exceeds %d bytes", f.Name, MaxFileSize)}
	}

	ct := http.DetectContentType(f.Data)
	if _, ok := allowedTypes[ct]; !ok {
		return "", &remote.ValidationError{Reason: fmt.Sprintf("unsupported media type %s", ct)}
	}

	return ct, nil
}

// UploadAll validates and uploads files, returning URLs in submission order.
// The first failure aborts the batch.
func UploadAll(ctx context.Context, u remote.Uploader, files []File) ([]string, error) {
	urls := make([]string, 0, len(files))

	for _, f := range files {
		ct, err := Validate(f)
		if err != nil {
			return nil, err
		}

		url, err := u.Upload(ctx, f.Name, ct, f.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", f.Name, err)
		}

		urls = append(urls, url)
	}

	return urls, nil
}
