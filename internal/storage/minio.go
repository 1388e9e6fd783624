package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/facegate/internal/config"
)

// MediaStore holds snapshot images in MinIO. Match snapshots live under
// matches/, training samples under train/<name>/.
type MediaStore struct {
	client *minio.Client
	bucket string
}

func NewMediaStore(cfg config.MinIOConfig) (*MediaStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MediaStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func MatchKey(filename string) string { return "matches/" + filename }

func TrainKey(name, filename string) string { return "train/" + name + "/" + filename }

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (s *MediaStore) PutMatch(ctx context.Context, filename string, data []byte) error {
	return s.put(ctx, MatchKey(filename), data)
}

func (s *MediaStore) GetMatch(ctx context.Context, filename string) ([]byte, error) {
	return s.get(ctx, MatchKey(filename))
}

func (s *MediaStore) PutTrain(ctx context.Context, name, filename string, data []byte) error {
	return s.put(ctx, TrainKey(name, filename), data)
}

func (s *MediaStore) GetTrain(ctx context.Context, name, filename string) ([]byte, error) {
	return s.get(ctx, TrainKey(name, filename))
}

func (s *MediaStore) put(ctx context.Context, key string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *MediaStore) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// DeleteMatches removes match snapshots in a single batch request.
func (s *MediaStore) DeleteMatches(ctx context.Context, filenames []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(filenames))
	for _, f := range filenames {
		objectsCh <- minio.ObjectInfo{Key: MatchKey(f)}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// DeleteTrain removes every stored sample for a trained name.
func (s *MediaStore) DeleteTrain(ctx context.Context, name string) error {
	prefix := "train/" + name + "/"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete object %s: %w", obj.Key, err)
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MediaStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
