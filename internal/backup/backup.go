// Package backup copies the SQLite database file to and from S3.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Backup restores and uploads one object.
type Backup struct {
	client ObjectAPI
	bucket string
	key    string
	log    *zap.Logger
}

// New creates a Backup over an existing client.
func New(client ObjectAPI, bucket, key string, log *zap.Logger) *Backup {
	return &Backup{client: client, bucket: bucket, key: key, log: log}
}

// NewFromEnv builds an S3 client from the default AWS config chain.
func NewFromEnv(ctx context.Context, bucket, key string, log *zap.Logger) (*Backup, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, key, log), nil
}

// Restore downloads the object to path unless path already exists.
// A missing object is not an error: the service starts with an empty database.
func (b *Backup) Restore(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		b.log.Debug("database present, skipping restore", zap.String("path", path))
		return nil
	}

	res, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			b.log.Info("no backup found, starting fresh", zap.String("bucket", b.bucket), zap.String("key", b.key))
			return nil
		}
		return fmt.Errorf("get backup: %w", err)
	}
	defer res.Body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".restore"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, res.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write backup: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	b.log.Info("database restored from backup", zap.String("path", path))
	return nil
}

// Upload puts the file at path as the backup object.
func (b *Backup) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("put backup: %w", err)
	}
	b.log.Info("database backed up", zap.String("bucket", b.bucket), zap.String("key", b.key))
	return nil
}
