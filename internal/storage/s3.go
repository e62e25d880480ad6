package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/models"
)

// ObjectStore downloads ingestion objects into scratch space.
type ObjectStore struct {
	client     *s3.Client
	scratchDir string
}

func NewObjectStore(ctx context.Context, region, scratchDir string) (*ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &ObjectStore{
		client:     s3.NewFromConfig(awsCfg),
		scratchDir: scratchDir,
	}, nil
}

// Download fetches bucket/key into a scratch file and returns its path.
// The caller removes the file when finished with it.
func (st *ObjectStore) Download(ctx context.Context, bucket, key string) (string, error) {
	out, err := st.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("%w: get object %s/%s: %v", models.ErrStorage, bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp(st.scratchDir, "ingest-*"+filepath.Ext(key))
	if err != nil {
		return "", fmt.Errorf("%w: create scratch file: %v", models.ErrStorage, err)
	}

	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: write scratch file: %v", models.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: close scratch file: %v", models.ErrStorage, err)
	}

	logger.Debug("Object downloaded", "bucket", bucket, "key", key, "path", f.Name())
	return f.Name(), nil
}
