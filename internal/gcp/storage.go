package gcp

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ReadObject downloads a Cloud Storage object into a SourceDocument. Objects
// larger than maxBytes are rejected before being read in full.
func ReadObject(ctx context.Context, client *storage.Client, bucket, object string, maxBytes int64) (models.SourceDocument, error) {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	if maxBytes > 0 && reader.Attrs.Size > maxBytes {
		return models.SourceDocument{}, models.InputError(fmt.Sprintf("gs://%s/%s is %d bytes, the limit is %d", bucket, object, reader.Attrs.Size, maxBytes))
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return models.SourceDocument{}, models.UnreadableInputError(fmt.Sprintf("failed to read gs://%s/%s", bucket, object), err)
	}
	return models.NewSourceDocument(object, reader.Attrs.ContentType, data), nil
}
