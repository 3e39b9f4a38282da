package images

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultTimeout   = 30 * time.Second
	// maxImageBytes caps a single download
	maxImageBytes = 20 << 20
)

var knownExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// fetchImage downloads one image and returns its bytes and content type
func fetchImage(ctx context.Context, client *http.Client, userAgent, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image url %s: %w", imageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch %s: status %d", imageURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", imageURL, err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image %s exceeds %d bytes", imageURL, maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// extension guesses the file extension from the URL path, defaulting to .jpg
func extension(imageURL string) string {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	for _, known := range knownExtensions {
		if ext == known {
			return ext
		}
	}
	return ".jpg"
}

// contentTypeFor returns the content type to store, preferring the one the
// server sent when it is an image type
func contentTypeFor(served, ext string) string {
	if strings.HasPrefix(served, "image/") {
		return served
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return "image/jpeg"
}
