// Package clipsource resolves configured clips to playable URLs and mounts
// them on a clip page. Clips stored in object storage get presigned URLs that
// are renewed before they expire.
package clipsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/moafunk/player/internal/clip"
	"github.com/moafunk/player/internal/config"
	"github.com/moafunk/player/internal/util"
)

// ErrNoStorage is returned when a clip names a key but storage is not configured.
var ErrNoStorage = errors.New("object storage is not configured")

// Resolver turns clip definitions into URLs.
type Resolver struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// New creates a resolver. Storage settings are optional; without them only
// clips with a static URL resolve.
func New(cfg config.S3Config) *Resolver {
	r := &Resolver{
		bucket: cfg.Bucket,
		ttl:    time.Duration(cfg.PresignTTLMinutes) * time.Minute,
	}
	if r.ttl <= 0 {
		r.ttl = config.DefaultPresignTTLMinutes * time.Minute
	}
	if cfg.IsConfigured() {
		r.presign = s3.NewPresignClient(newS3Client(cfg))
	}
	return r
}

func newS3Client(cfg config.S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = cfg.Region
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.New(s3.Options{}, options...)
}

// TTL returns the lifetime of presigned URLs.
func (r *Resolver) TTL() time.Duration {
	return r.ttl
}

// Resolve returns the URL for c.
func (r *Resolver) Resolve(ctx context.Context, c config.Clip) (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if r.presign == nil {
		return "", fmt.Errorf("clip %s: %w", c.ID, ErrNoStorage)
	}
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(c.Key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", util.WrapError("presign clip "+c.ID, err)
	}
	return req.URL, nil
}

// Mount resolves every clip and mounts it on page. Clips that fail to
// resolve are skipped and reported in the returned error.
func (r *Resolver) Mount(ctx context.Context, page *clip.Page, clips []config.Clip) error {
	var errs []error
	for _, c := range clips {
		src, err := r.Resolve(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := page.Mount(c.ID, src, c.Title); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh re-resolves keyed clips and hands the new URLs to their players.
// A presigned URL differs from the previous one only in its query, so a
// playing clip keeps playing.
func (r *Resolver) Refresh(ctx context.Context, page *clip.Page, clips []config.Clip) {
	for _, c := range clips {
		if c.Key == "" {
			continue
		}
		p, err := page.Get(c.ID)
		if err != nil {
			continue
		}
		src, err := r.Resolve(ctx, c)
		if err != nil {
			slog.Warn("failed to refresh clip URL", "clip", c.ID, "error", err)
			continue
		}
		if err := p.SetSrc(src); err != nil {
			slog.Debug("clip player gone during refresh", "clip", c.ID, "error", err)
		}
	}
}

// Run refreshes presigned URLs at half their lifetime until ctx is done.
func (r *Resolver) Run(ctx context.Context, page *clip.Page, clips []config.Clip) {
	if r.presign == nil {
		return
	}
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx, page, clips)
		}
	}
}
