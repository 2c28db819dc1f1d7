package tasks

import (
	"context"
	"fmt"
	"net/http"

	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/providers"
)

// Downloader fetches provider result bytes into the artifact store.
type Downloader struct {
	client *http.Client
}

func NewDownloader() *Downloader {
	return &Downloader{client: &http.Client{Timeout: providers.DownloadTimeout}}
}

func (d *Downloader) Fetch(ctx context.Context, url string, store *artifact.Store, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %d", resp.StatusCode)
	}
	_, err = store.Put(name, resp.Body)
	return err
}
