// Package uploader turns local artifacts into public URLs for the AI
// providers, which only accept reachable image URLs.
package uploader

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	storage "github.com/supabase-community/storage-go"
)

// Uploader resolves a locally stored artifact to a URL an external provider
// can fetch.
type Uploader interface {
	PublicURL(ctx context.Context, localPath, orderNumber string) (string, error)
}

// Direct serves files off the application's own public endpoint; usable
// when the instance is reachable from the provider (production CDN or
// public base URL).
type Direct struct {
	baseURL string
}

func NewDirect(baseURL string) *Direct {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &Direct{baseURL: baseURL}
}

func (d *Direct) PublicURL(_ context.Context, localPath, _ string) (string, error) {
	if d.baseURL == "" {
		return "", fmt.Errorf("direct uploader has no public base URL configured")
	}
	return d.baseURL + "/public/hd/" + url.PathEscape(filepath.Base(localPath)), nil
}

// ObjectStore pushes the file to bucket storage and returns the bucket's
// public object URL. This is the "grsai" upload strategy.
type ObjectStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewObjectStore(storageURL, serviceKey, bucket string) (*ObjectStore, error) {
	baseURL := storageURL
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	client := storage.NewClient(baseURL+"/storage/v1", serviceKey, nil)
	return &ObjectStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

func (o *ObjectStore) PublicURL(_ context.Context, localPath, orderNumber string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s for upload: %w", localPath, err)
	}

	name := filepath.Base(localPath)
	storagePath := fmt.Sprintf("orders/%s/%s", orderNumber, name)

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "image/jpeg"
	}
	upsert := true
	_, err = o.client.UploadFile(o.bucket, storagePath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", o.baseURL, o.bucket, storagePath), nil
}
