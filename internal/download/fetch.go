package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"tunebot/pkg/logx"
)

// fetch streams url to final via final+".part" and renames it into place
// only when the body is at least MinValidSize bytes. The partial file is
// always removed on failure.
func (p *Pipeline) fetch(ctx context.Context, url, final string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	part := final + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n < MinValidSize {
		p.counters.Corrupt.Add(1)
		err = fmt.Errorf("%w: got %d bytes", ErrCorrupt, n)
	}
	if err == nil {
		err = os.Rename(part, final)
	}
	if err != nil {
		if rmErr := os.Remove(part); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.log.Warn("failed to remove partial file", logx.String("path", part), logx.Err(rmErr))
		}
		return 0, err
	}
	return n, nil
}
