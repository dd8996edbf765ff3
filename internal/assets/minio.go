package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures the S3-compatible asset store.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// MinioStore keeps assets in an S3-compatible bucket, one prefix per deck.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the MinIO server and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the image and its sidecar.
func (s *MinioStore) Put(ctx context.Context, deckID string, data []byte, meta *Meta) (string, error) {
	ref := NewRef(deckID)

	_, err := s.client.PutObject(ctx, s.bucket, ref, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("failed to save asset: %w", err)
	}

	if meta != nil {
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		_, err = s.client.PutObject(ctx, s.bucket, metaRef(ref), bytes.NewReader(metaBytes), int64(len(metaBytes)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if err != nil {
			return "", fmt.Errorf("failed to save metadata: %w", err)
		}
	}

	return ref, nil
}

// Get downloads the object bytes for a ref.
func (s *MinioStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if _, _, err := splitRef(ref); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var respErr minio.ErrorResponse
		if errors.As(err, &respErr) && respErr.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}

// Delete removes the object and its sidecar.
func (s *MinioStore) Delete(ctx context.Context, ref string) error {
	if _, _, err := splitRef(ref); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, metaRef(ref), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// DeleteDeck removes every object under the deck's prefix.
func (s *MinioStore) DeleteDeck(ctx context.Context, deckID string) error {
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    deckID + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list deck assets: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete asset %s: %w", obj.Key, err)
		}
	}
	return nil
}

// List returns the deck's image objects with metadata folded in.
func (s *MinioStore) List(ctx context.Context, deckID string) ([]Object, error) {
	var objects []Object
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    deckID + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list deck assets: %w", obj.Err)
		}
		if isSidecar(obj.Key) {
			continue
		}
		entry := Object{
			Ref:       obj.Key,
			SizeBytes: obj.Size,
			ModTime:   obj.LastModified,
		}
		if metaBytes, err := s.Get(ctx, metaRef(obj.Key)); err == nil {
			var meta Meta
			if json.Unmarshal(metaBytes, &meta) == nil {
				entry.Meta = &meta
			}
		}
		objects = append(objects, entry)
	}
	return objects, nil
}

// Stats aggregates image object counts and sizes across the bucket.
func (s *MinioStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return Stats{}, fmt.Errorf("failed to list assets: %w", obj.Err)
		}
		if isSidecar(obj.Key) {
			continue
		}
		stats.Objects++
		stats.TotalBytes += obj.Size
	}
	return stats, nil
}

func isSidecar(key string) bool {
	return len(key) > len(".meta.json") && key[len(key)-len(".meta.json"):] == ".meta.json"
}

var _ Store = (*MinioStore)(nil)
