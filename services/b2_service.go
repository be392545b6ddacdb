package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kurin/blazer/b2"
)

// B2Service stores file bytes in a Backblaze B2 bucket, keyed by content
// hash so identical uploads share one object.
type B2Service struct {
	client     *b2.Client
	bucketName string
	bucket     *b2.Bucket
}

func NewB2Service(keyID, applicationKey, bucketName string) (*B2Service, error) {
	ctx := context.Background()

	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}

	return &B2Service{
		client:     client,
		bucketName: bucketName,
		bucket:     bucket,
	}, nil
}

func objectName(key string) string {
	return fmt.Sprintf("objects/%s", key)
}

// Exists reports whether an object with the given content key is present.
func (s *B2Service) Exists(ctx context.Context, key string) (bool, error) {
	obj := s.bucket.Object(objectName(key))
	if _, err := obj.Attrs(ctx); err != nil {
		if b2.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the object for the given content key. Deleting an object
// that is already gone is not an error.
func (s *B2Service) Delete(ctx context.Context, key string) error {
	obj := s.bucket.Object(objectName(key))
	if err := obj.Delete(ctx); err != nil {
		if b2.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// GetDownloadURL generates a signed download URL for private buckets.
func (s *B2Service) GetDownloadURL(key string, duration time.Duration) (string, error) {
	ctx := context.Background()
	obj := s.bucket.Object(objectName(key))

	urlObj, err := obj.AuthURL(ctx, duration, "GET")
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return urlObj.String(), nil
}
