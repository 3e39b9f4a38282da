package images

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

// Downloader saves listing images to a local directory, one subdirectory
// per listing
type Downloader struct {
	dir       string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewDownloader creates a Downloader writing under dir and spacing requests
// by delay
func NewDownloader(dir string, client *http.Client, delay time.Duration) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Downloader{
		dir:       dir,
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: defaultUserAgent,
	}
}

// FileName is NN_<first 12 hex chars of md5(url)><ext>
func FileName(index int, imageURL string) string {
	sum := md5.Sum([]byte(imageURL))
	return fmt.Sprintf("%02d_%s%s", index, hex.EncodeToString(sum[:])[:12], extension(imageURL))
}

// Download stores every image of the listing and returns the paths
// relative to the download directory. Files already present are kept.
func (d *Downloader) Download(ctx context.Context, listingID string, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	listingDir := filepath.Join(d.dir, listingID)
	if err := os.MkdirAll(listingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", listingDir, err)
	}

	var saved []string
	for i, imageURL := range urls {
		name := FileName(i, imageURL)
		target := filepath.Join(listingDir, name)
		relative := filepath.Join(listingID, name)

		if _, err := os.Stat(target); err == nil {
			log.Printf("Image already exists: %s\n", target)
			saved = append(saved, relative)
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return saved, err
		}

		data, _, err := fetchImage(ctx, d.client, d.userAgent, imageURL)
		if err != nil {
			log.Printf("Error downloading image %s: %v\n", imageURL, err)
			continue
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			log.Printf("Error saving image %s: %v\n", target, err)
			continue
		}
		saved = append(saved, relative)
	}
	return saved, nil
}
