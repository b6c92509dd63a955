// Snapshot backups to local files, S3 and HTTP URLs.
package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/glog"
	"github.com/klauspost/compress/zstd"

	"github.com/nickyhof/dbaccess/engine"
)

// S3Config contains S3 authentication configuration. Empty fields fall
// back to the default AWS configuration chain.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // Optional: custom S3-compatible endpoint
}

// location is a parsed backup source or target.
type location struct {
	scheme string // "file", "s3", "http" or "https"
	path   string // local path or full URL
	bucket string
	key    string
}

func parseLocation(raw string) (location, error) {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return location{scheme: "file", path: raw}, nil
	}

	switch loc := (location{scheme: strings.ToLower(scheme), path: raw}); loc.scheme {
	case "file":
		loc.path = rest
		return loc, nil
	case "http", "https":
		return loc, nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return location{}, fmt.Errorf("invalid S3 URL: %s", raw)
		}
		loc.bucket, loc.key = bucket, key
		return loc, nil
	default:
		return location{}, fmt.Errorf("unsupported URL scheme: %s", raw)
	}
}

// Backup writes a zstd compressed snapshot of the database to target, a
// local path, file:// URL or s3://bucket/key URL. The engine must
// implement engine.Snapshotter. It returns the uncompressed size.
func (a *Access) Backup(ctx context.Context, target string, cfg *S3Config) (int64, error) {
	snapshotter, ok := a.conn.(engine.Snapshotter)
	if !ok {
		return 0, fmt.Errorf("%s engine does not support snapshots", a.Dialect().Name)
	}
	loc, err := parseLocation(target)
	if err != nil {
		return 0, err
	}
	if loc.scheme == "http" || loc.scheme == "https" {
		return 0, fmt.Errorf("cannot write a backup to %s", target)
	}

	dir, err := os.MkdirTemp("", "dbaccess-snapshot-")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	snapshotPath := filepath.Join(dir, "snapshot.db")
	if err := snapshotter.Snapshot(ctx, snapshotPath); err != nil {
		return 0, err
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := loc.create(ctx, cfg)
	if err != nil {
		return 0, err
	}

	encoder, err := zstd.NewWriter(dst)
	if err != nil {
		dst.Close()
		return 0, err
	}
	size, err := io.Copy(encoder, src)
	if err != nil {
		encoder.Close()
		dst.Close()
		return 0, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := encoder.Close(); err != nil {
		dst.Close()
		return 0, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := dst.Close(); err != nil {
		return 0, err
	}

	glog.Infof("Backup of %d bytes written to %s", size, target)
	return size, nil
}

// Restore decompresses the snapshot at source, a local path, file://,
// http(s):// or s3:// URL, into the database file at path. The database
// must not be open while it is restored.
func Restore(ctx context.Context, source string, path string, cfg *S3Config) (int64, error) {
	loc, err := parseLocation(source)
	if err != nil {
		return 0, err
	}
	src, err := loc.open(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	decoder, err := zstd.NewReader(src)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer decoder.Close()

	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(dst, decoder)
	if err != nil {
		dst.Close()
		return 0, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	if err := dst.Close(); err != nil {
		return 0, err
	}

	glog.Infof("Restored %d bytes from %s to %s", size, source, path)
	return size, nil
}

func (loc location) open(ctx context.Context, cfg *S3Config) (io.ReadCloser, error) {
	switch loc.scheme {
	case "http", "https":
		return loc.get(ctx)
	case "s3":
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.bucket),
			Key:    aws.String(loc.key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get s3://%s/%s: %w", loc.bucket, loc.key, err)
		}
		return out.Body, nil
	default:
		return os.Open(loc.path)
	}
}

func (loc location) create(ctx context.Context, cfg *S3Config) (io.WriteCloser, error) {
	if loc.scheme != "s3" {
		return os.Create(loc.path)
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &s3Upload{ctx: ctx, client: client, loc: loc}, nil
}

var httpClient = &http.Client{Timeout: 5 * time.Minute}

func (loc location) get(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", loc.path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: %s", loc.path, resp.Status)
	}
	return resp.Body, nil
}

func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	if cfg == nil {
		cfg = &S3Config{}
	}

	var loadOptions []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOptions = append(loadOptions, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// s3Upload collects the snapshot in memory and puts the object on Close.
type s3Upload struct {
	ctx    context.Context
	client *s3.Client
	loc    location
	data   bytes.Buffer
	done   bool
}

func (u *s3Upload) Write(p []byte) (int, error) {
	if u.done {
		return 0, errors.New("write after close")
	}
	return u.data.Write(p)
}

func (u *s3Upload) Close() error {
	if u.done {
		return nil
	}
	u.done = true

	_, err := u.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.loc.bucket),
		Key:    aws.String(u.loc.key),
		Body:   bytes.NewReader(u.data.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", u.loc.bucket, u.loc.key, err)
	}
	return nil
}
