package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// Fetcher retrieves the HTML of one page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultEncoding  = "windows-1252"
	DefaultTimeout   = 10 * time.Second
)

// Options configures a fetcher
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is the pause between two requests to the same site
	Delay time.Duration
	// Encoding is the charset assumed for pages that are not valid UTF-8
	Encoding string
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Encoding == "" {
		o.Encoding = DefaultEncoding
	}
	return o
}

// decodeBody returns body as UTF-8. Bodies that already are valid UTF-8
// are returned unchanged; anything else is decoded from encoding.
func decodeBody(body []byte, encoding string) (string, error) {
	if utf8.Valid(body) {
		return string(body), nil
	}
	enc, err := htmlindex.Get(strings.ToLower(encoding))
	if err != nil {
		return "", fmt.Errorf("unknown page encoding %q: %w", encoding, err)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("failed to decode page as %s: %w", encoding, err)
	}
	return string(decoded), nil
}
