// Package storage turns stored attachment paths into URLs clients can fetch.
// Uploading is handled elsewhere; this package only builds links.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

func cleanKey(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}

// StaticResolver prefixes paths with a fixed base URL. An empty base leaves
// paths untouched.
type StaticResolver struct {
	baseURL string
}

func NewStaticResolver(baseURL string) *StaticResolver {
	return &StaticResolver{baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *StaticResolver) ResolveURL(_ context.Context, path string) (string, error) {
	if isAbsolute(path) || r.baseURL == "" {
		return path, nil
	}
	return fmt.Sprintf("%s/%s", r.baseURL, cleanKey(path)), nil
}

type urlSigner interface {
	SignedURL(object string, opts *storage.SignedURLOptions) (string, error)
}

// GCSResolver builds links to objects in a Cloud Storage bucket. With a
// signed URL TTL it returns V4 signed URLs; otherwise it returns the public
// or CDN URL.
type GCSResolver struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
	signTTL   time.Duration
	signer    urlSigner
}

type GCSConfig struct {
	Bucket          string
	CDNDomain       string
	CredentialsFile string
	SignedURLTTL    time.Duration
}

func NewGCSResolver(ctx context.Context, cfg GCSConfig) (*GCSResolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs resolver: bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs resolver: create client: %w", err)
	}
	return &GCSResolver{
		client:    client,
		bucket:    cfg.Bucket,
		cdnDomain: cfg.CDNDomain,
		signTTL:   cfg.SignedURLTTL,
		signer:    client.Bucket(cfg.Bucket),
	}, nil
}

func (r *GCSResolver) ResolveURL(_ context.Context, path string) (string, error) {
	if isAbsolute(path) {
		return path, nil
	}
	key := cleanKey(path)
	if r.signTTL > 0 && r.signer != nil {
		return r.signer.SignedURL(key, &storage.SignedURLOptions{
			Method:  http.MethodGet,
			Expires: time.Now().Add(r.signTTL),
			Scheme:  storage.SigningSchemeV4,
		})
	}
	if r.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", r.cdnDomain, key), nil
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", r.bucket, key), nil
}

func (r *GCSResolver) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
