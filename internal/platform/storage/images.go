// Package storage persists uploaded product images either on local disk
// (the default for single-node deployments) or in a GCS bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ImageStore persists uploaded product images and reports the object key
// used to reference them later.
type ImageStore interface {
	Save(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
	Remove(ctx context.Context, objectPath string) error
}

// DiskImageStore writes images beneath a root directory. The directory is
// expected to be served statically by the HTTP router.
type DiskImageStore struct {
	root string
}

// NewDiskImageStore creates the root directory when missing.
func NewDiskImageStore(root string) (*DiskImageStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage: upload directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload directory: %w", err)
	}
	return &DiskImageStore{root: root}, nil
}

// Root exposes the directory for static file serving.
func (s *DiskImageStore) Root() string { return s.root }

// Save writes the image under the object path, creating subdirectories as
// needed.
func (s *DiskImageStore) Save(_ context.Context, objectPath, _ string, r io.Reader) (string, error) {
	cleaned, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage: create image directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("storage: create image file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("storage: write image file: %w", err)
	}
	return cleaned, nil
}

// Remove deletes the stored image. Missing files are not an error.
func (s *DiskImageStore) Remove(_ context.Context, objectPath string) error {
	cleaned, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(cleaned)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove image file: %w", err)
	}
	return nil
}

// GCSImageStore persists images in a Cloud Storage bucket.
type GCSImageStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSImageStore wraps an existing client and bucket name.
func NewGCSImageStore(client *gcs.Client, bucket string) (*GCSImageStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage: gcs client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage: bucket name is required")
	}
	return &GCSImageStore{client: client, bucket: bucket}, nil
}

// Save uploads the image to the bucket under the object path.
func (s *GCSImageStore) Save(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	cleaned, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}

	writer := s.client.Bucket(s.bucket).Object(cleaned).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: upload image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise image upload: %w", err)
	}
	return cleaned, nil
}

// Remove deletes the object; an already-deleted object is not an error.
func (s *GCSImageStore) Remove(ctx context.Context, objectPath string) error {
	cleaned, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(cleaned).Delete(ctx)
	if err != nil && err != gcs.ErrObjectNotExist {
		return fmt.Errorf("storage: delete image object: %w", err)
	}
	return nil
}

func cleanObjectPath(objectPath string) (string, error) {
	trimmed := strings.TrimSpace(objectPath)
	if trimmed == "" {
		return "", fmt.Errorf("storage: object path is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("storage: object path %q is outside the store", objectPath)
	}
	return cleaned, nil
}
