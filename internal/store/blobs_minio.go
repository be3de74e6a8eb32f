package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioPartSize bounds the buffer minio-go allocates for streams of
// unknown length.
const minioPartSize = 8 << 20

var errBlobAborted = errors.New("blob write aborted")

// MinioConfig selects an S3 compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// MinioBlobs stores files as objects in one bucket.
type MinioBlobs struct {
	client *minio.Client
	bucket string
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// "minio:9000", "http://minio:9000" and "https://minio:9000" are all accepted.
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, false, nil
}

// NewMinioBlobs connects to the endpoint and requires the bucket to exist.
func NewMinioBlobs(ctx context.Context, cfg MinioConfig) (*MinioBlobs, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	b := &MinioBlobs{client: client, bucket: cfg.Bucket}
	if err := b.Check(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Create streams into PutObject through a pipe. Existence is checked first;
// stored names carry a random prefix so the window is not a practical race.
func (b *MinioBlobs) Create(ctx context.Context, name string) (BlobWriter, error) {
	if !ValidStoredName(name) {
		return nil, ErrInvalidName
	}
	if _, err := b.Stat(ctx, name); err == nil {
		return nil, ErrBlobExists
	} else if !errors.Is(err, ErrBlobNotFound) {
		return nil, err
	}

	pr, pw := io.Pipe()
	w := &minioWriter{pw: pw, done: make(chan error, 1), remove: func() {
		_ = b.client.RemoveObject(context.WithoutCancel(ctx), b.bucket, name, minio.RemoveObjectOptions{})
	}}
	go func() {
		_, err := b.client.PutObject(ctx, b.bucket, name, pr, -1, minio.PutObjectOptions{
			ContentType: octetStream,
			PartSize:    minioPartSize,
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

func (b *MinioBlobs) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if !ValidStoredName(name) {
		return nil, 0, ErrInvalidName
	}
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, err
	}
	// GetObject is lazy; Stat forces the request so a missing key surfaces here.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, err
	}
	return obj, info.Size, nil
}

func (b *MinioBlobs) Stat(ctx context.Context, name string) (int64, error) {
	if !ValidStoredName(name) {
		return 0, ErrInvalidName
	}
	info, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, ErrBlobNotFound
		}
		return 0, err
	}
	return info.Size, nil
}

func (b *MinioBlobs) Remove(ctx context.Context, name string) error {
	if !ValidStoredName(name) {
		return ErrInvalidName
	}
	return b.client.RemoveObject(ctx, b.bucket, name, minio.RemoveObjectOptions{})
}

func (b *MinioBlobs) Locate(name string) string {
	return "s3://" + b.bucket + "/" + name
}

func (b *MinioBlobs) Check(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("minio bucket does not exist: %s", b.bucket)
	}
	return nil
}

type minioWriter struct {
	pw     *io.PipeWriter
	done   chan error
	remove func()
}

func (w *minioWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *minioWriter) Commit() error {
	_ = w.pw.Close()
	return <-w.done
}

func (w *minioWriter) Abort() error {
	_ = w.pw.CloseWithError(errBlobAborted)
	<-w.done
	w.remove()
	return nil
}
