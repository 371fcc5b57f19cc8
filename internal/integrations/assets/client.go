// Package assets stores and serves binary media (menu images, composites,
// synthesized audio) from S3.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const maxAssetBytes = 16 << 20

// s3API is the minimal S3 interface required by Store.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Store resolves asset references. A reference is either an object key in
// the bucket or an absolute http(s) URL.
type Store struct {
	api        s3API
	bucket     string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Store)

func WithHTTPClient(h *http.Client) Option {
	return func(s *Store) { s.httpClient = h }
}

// New returns a Store for bucket whose objects are publicly served under
// baseURL.
func New(api s3API, bucket, baseURL string, opts ...Option) (*Store, error) {
	if api == nil {
		return nil, errors.New("assets: api must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("assets: bucket must not be empty")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://" + bucket + ".s3.amazonaws.com"
	}
	s := &Store{
		api:        api,
		bucket:     bucket,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// URL is the public URL of ref.
func (s *Store) URL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || isAbsolute(ref) {
		return ref
	}
	return s.baseURL + "/" + strings.TrimLeft(ref, "/")
}

func (s *Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("assets: empty reference")
	}
	if key, ok := strings.CutPrefix(ref, s.baseURL+"/"); ok {
		return s.getObject(ctx, key)
	}
	if isAbsolute(ref) {
		return s.download(ctx, ref)
	}
	return s.getObject(ctx, strings.TrimLeft(ref, "/"))
}

func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("assets: key is required")
	}
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("assets: put %q: %w", key, err)
	}
	return s.URL(key), nil
}

// Lookup reports whether key exists and returns its public URL.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("assets: head %q: %w", key, err)
	}
	return s.URL(key), true, nil
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("assets: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(out.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("assets: read %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("assets: create request: %w", err)
	}
	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assets: download %s: %w", url, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("assets: download %s: unexpected status %d", url, res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("assets: read %s: %w", url, err)
	}
	return data, nil
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
