package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/geoimport/pkg/retry"
	"github.com/ruslano69/geoimport/pkg/settings"
)

// Fetcher retrieves one file of the GeoNames export directory by name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the server may answer differently next time.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPFetcher downloads files relative to a base URL.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
}

// NewHTTPFetcher returns a fetcher for baseURL. timeout bounds one file.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	u, err := url.JoinPath(f.baseURL, name)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}

	log.Debug().Str("url", u).Int("bytes", len(data)).Msg("Downloaded")
	return data, nil
}

// S3Fetcher downloads files from a bucket mirroring the export directory.
type S3Fetcher struct {
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// NewS3Fetcher returns a fetcher reading bucket/prefix/<name>.
func NewS3Fetcher(client manager.DownloadAPIClient, bucket, prefix string) *S3Fetcher {
	return &S3Fetcher{
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		prefix:     prefix,
	}
}

// NewS3Client builds an S3 client for the mirror settings. A custom endpoint
// switches to path-style addressing (MinIO, LocalStack).
func NewS3Client(ctx context.Context, cfg settings.S3Source) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	key := path.Join(f.prefix, name)
	buf := manager.NewWriteAtBuffer(nil)

	n, err := f.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", f.bucket, key, err)
	}

	log.Debug().Str("bucket", f.bucket).Str("key", key).Int64("bytes", n).Msg("Downloaded")
	return buf.Bytes(), nil
}

type retrying struct {
	next    Fetcher
	retryer *retry.Retryer
}

// WithRetry retries failed fetches under retryer.
func WithRetry(next Fetcher, retryer *retry.Retryer) Fetcher {
	return &retrying{next: next, retryer: retryer}
}

func (r *retrying) Fetch(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := r.retryer.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = r.next.Fetch(ctx, name)
		return err
	})
	return data, err
}

// IsTransient reports whether a fetch error is worth retrying: network
// failures and 5xx/429 responses are, everything else is not.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

type cached struct {
	next Fetcher
	dir  string
}

// WithCache keeps fetched files in dir and serves them from there on the
// next run.
func WithCache(next Fetcher, dir string) Fetcher {
	return &cached{next: next, dir: dir}
}

func (c *cached) Fetch(ctx context.Context, name string) ([]byte, error) {
	file := filepath.Join(c.dir, filepath.Base(name))

	if data, err := os.ReadFile(file); err == nil {
		log.Info().Str("file", file).Msg("Using cached download")
		return data, nil
	}

	data, err := c.next.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", name, err)
	}
	return data, nil
}

// NewFetcher builds the fetcher described by cfg: S3 when a mirror bucket is
// set, HTTP otherwise, wrapped with download retry and the work dir cache.
func NewFetcher(ctx context.Context, cfg settings.SourceConfig) (Fetcher, error) {
	var f Fetcher
	if cfg.S3 != nil && cfg.S3.Bucket != "" {
		client, err := NewS3Client(ctx, *cfg.S3)
		if err != nil {
			return nil, err
		}
		f = NewS3Fetcher(client, cfg.S3.Bucket, cfg.S3.Prefix)
	} else {
		f = NewHTTPFetcher(cfg.BaseURL, time.Duration(cfg.Timeout)*time.Second)
	}

	policy := retry.DownloadConfig()
	policy.Retryable = IsTransient
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Download failed, retrying")
	}
	retryer, err := retry.NewRetryer(policy)
	if err != nil {
		return nil, err
	}
	f = WithRetry(f, retryer)

	if cfg.WorkDir != "" {
		f = WithCache(f, cfg.WorkDir)
	}
	return f, nil
}
