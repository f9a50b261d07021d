package emulator

import (
	"context"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/go-faster/errors"
)

// BucketUploader writes backups to a Cloud Storage bucket under Prefix.
type BucketUploader struct {
	Bucket *storage.BucketHandle
	Prefix string
}

func (u BucketUploader) Upload(ctx context.Context, name string, r io.Reader) error {
	w := u.Bucket.Object(path.Join(u.Prefix, name)).NewWriter(ctx)
	w.ContentType = "application/gzip"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "write object")
	}
	return w.Close()
}
