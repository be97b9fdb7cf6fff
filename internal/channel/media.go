package channel

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	mediaFetchTimeout = 60 * time.Second
	mediaMaxBytes     = 50 << 20 // refuse absurd remote payloads
)

// mediaFetcher downloads URL-referenced reply payloads before they are
// handed to a platform SDK. A fetch failure is a send failure, never a
// crash.
type mediaFetcher struct {
	client *http.Client
	logger *slog.Logger
}

func newMediaFetcher(logger *slog.Logger) *mediaFetcher {
	return &mediaFetcher{
		client: &http.Client{Timeout: mediaFetchTimeout},
		logger: logger,
	}
}

// fetch streams the remote resource into memory and returns a reader over
// the bytes plus the payload size.
func (m *mediaFetcher) fetch(url string) (*bytes.Reader, int64, error) {
	resp, err := m.client.Get(url)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch media %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetch media %s: status %d", url, resp.StatusCode)
	}

	var buf bytes.Buffer
	size, err := io.Copy(&buf, io.LimitReader(resp.Body, mediaMaxBytes+1))
	if err != nil {
		return nil, 0, fmt.Errorf("fetch media %s: %w", url, err)
	}
	if size > mediaMaxBytes {
		return nil, 0, fmt.Errorf("fetch media %s: payload exceeds %d bytes", url, int64(mediaMaxBytes))
	}

	m.logger.Info("media downloaded", "url", url, "size", size)
	return bytes.NewReader(buf.Bytes()), size, nil
}
