package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxAssetBytes caps a single downloaded stylesheet or script
const maxAssetBytes = 4 << 20

// Assets are the stylesheet and script inlined into the report
type Assets struct {
	CSS string
	JS  string
	// Links are used when the content could not be inlined
	CSSURL string
	JSURL  string
}

// Inlined reports whether both assets were downloaded
func (a Assets) Inlined() bool {
	return a.CSS != "" && a.JS != ""
}

// AssetFetcher downloads report assets so the report renders offline
type AssetFetcher struct {
	client *http.Client
	cssURL string
	jsURL  string
	logger *zap.Logger
}

// NewAssetFetcher creates a fetcher. A nil client uses one with the given timeout.
func NewAssetFetcher(client *http.Client, cssURL, jsURL string, timeout time.Duration, logger *zap.Logger) *AssetFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetFetcher{client: client, cssURL: cssURL, jsURL: jsURL, logger: logger}
}

// Fetch downloads both assets. Failures are logged and leave the content
// empty so the report falls back to linking the URLs.
func (f *AssetFetcher) Fetch(ctx context.Context) Assets {
	assets := Assets{CSSURL: f.cssURL, JSURL: f.jsURL}

	if f.cssURL != "" {
		css, err := f.get(ctx, f.cssURL)
		if err != nil {
			f.logger.Warn("Could not download report stylesheet", zap.String("url", f.cssURL), zap.Error(err))
		} else {
			assets.CSS = css
		}
	}

	if f.jsURL != "" {
		js, err := f.get(ctx, f.jsURL)
		if err != nil {
			f.logger.Warn("Could not download report script", zap.String("url", f.jsURL), zap.Error(err))
		} else {
			assets.JS = js
		}
	}

	return assets
}

func (f *AssetFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading asset: %w", err)
	}
	if len(body) > maxAssetBytes {
		return "", fmt.Errorf("asset larger than %d bytes", maxAssetBytes)
	}
	return string(body), nil
}
