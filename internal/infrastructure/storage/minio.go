// Package storage implements object storage for check-in photo attachments.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage configuration.
type Config struct {
	// Endpoint is the MinIO/S3 endpoint, host:port.
	Endpoint string

	// AccessKey and SecretKey authenticate this service.
	AccessKey string
	SecretKey string

	// Bucket holds photo attachments. Created on startup if missing.
	Bucket string

	// UseSSL enables HTTPS to the endpoint.
	UseSSL bool
}

// PhotoStore stores and removes check-in photo attachments.
// It implements the object remover used by the retention sweep.
type PhotoStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewPhotoStore creates a PhotoStore and ensures the bucket exists.
func NewPhotoStore(cfg Config, logger *slog.Logger) (*PhotoStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	logger.Info("connected to object storage",
		"endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &PhotoStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Upload stores a photo and returns its object path. The path goes on the
// check-in row; the blob itself is opaque to the rest of the system.
func (s *PhotoStore) Upload(ctx context.Context, ownerID string, r io.Reader, size int64, contentType string) (string, error) {
	path := fmt.Sprintf("photos/%s/%s", ownerID, uuid.NewString())
	_, err := s.client.PutObject(ctx, s.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}
	return path, nil
}

// Remove deletes a photo by its object path. Removing a missing object is
// not an error; the retention sweep may retry paths it already cleaned.
func (s *PhotoStore) Remove(ctx context.Context, path string) error {
	err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove photo: %w", err)
	}
	return nil
}
