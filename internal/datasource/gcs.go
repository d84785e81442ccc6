package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/features"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ObjectOpener opens a readable stream for a bucket object. A generation of 0
// means the live version.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string, generation int64) (io.ReadCloser, error)
}

// GCSConfig locates the remote dataset and its local copy
type GCSConfig struct {
	Bucket     string
	Object     string
	Generation int64
	LocalPath  string
	MaxRetry   time.Duration
	Location   *time.Location
}

// GCSSource pulls a versioned CSV from Cloud Storage to a local path and
// parses it. Each Load pulls again so a new object version is picked up.
type GCSSource struct {
	cfg    GCSConfig
	opener ObjectOpener
	logger zerolog.Logger
}

// NewGCSSource creates a GCS-backed data source
func NewGCSSource(cfg GCSConfig, opener ObjectOpener, logger zerolog.Logger) *GCSSource {
	return &GCSSource{
		cfg:    cfg,
		opener: opener,
		logger: logger.With().Str("component", "gcs_source").Logger(),
	}
}

// Load implements inference.DataSource
func (s *GCSSource) Load(ctx context.Context) (features.History, error) {
	uri := fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, s.cfg.Object)

	op := func() error {
		rc, err := s.opener.Open(ctx, s.cfg.Bucket, s.cfg.Object, s.cfg.Generation)
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		defer rc.Close()
		return writeAtomic(s.cfg.LocalPath, rc)
	}

	if err := Retry(ctx, s.cfg.MaxRetry, op); err != nil {
		return nil, fmt.Errorf("pull %s: %w: %w", uri, err, api.ErrDataUnavailable)
	}

	h, err := readHistory(s.cfg.LocalPath, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("uri", uri).Int64("generation", s.cfg.Generation).Int("rows", len(h)).Msg("pulled observations")
	return h, nil
}

// StorageOpener adapts a Cloud Storage client to ObjectOpener
type StorageOpener struct {
	client *storage.Client
}

// NewStorageOpener creates a client using the credentials file when given,
// or application default credentials otherwise.
func NewStorageOpener(ctx context.Context, credentialsFile string) (*StorageOpener, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &StorageOpener{client: client}, nil
}

// Open implements ObjectOpener
func (o *StorageOpener) Open(ctx context.Context, bucket, object string, generation int64) (io.ReadCloser, error) {
	obj := o.client.Bucket(bucket).Object(object)
	if generation > 0 {
		obj = obj.Generation(generation)
	}
	return obj.NewReader(ctx)
}

// Close releases the underlying client
func (o *StorageOpener) Close() error {
	return o.client.Close()
}
