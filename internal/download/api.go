package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// apiReply is the body of both /song and /backupyt.
type apiReply struct {
	Status      string `json:"status"`
	DownloadURL string `json:"download_url"`
	Format      string `json:"format"`
	Error       string `json:"error"`
}

var (
	errNoLink       = errors.New("no download link")
	errPollExceeded = errors.New("still downloading after max polls")
)

// link is a ready-to-fetch URL plus the container format the API reported.
type link struct {
	url string
	ext string
}

func (p *Pipeline) getJSON(ctx context.Context, endpoint string) (apiReply, int, error) {
	var out apiReply
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, 0, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return out, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return out, resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return out, resp.StatusCode, fmt.Errorf("decode reply: %w", err)
	}
	return out, resp.StatusCode, nil
}

func endpoint(base, route, id, key string) string {
	return base + "/" + route + "/" + url.PathEscape(id) + "?key=" + url.QueryEscape(key)
}

// pollPrimary asks the primary API for id until it reports done, fails,
// or PollMax polls were spent. The interval between polls is fixed.
func (p *Pipeline) pollPrimary(ctx context.Context, j *job) (link, error) {
	ep := endpoint(p.cfg.APIURL, "song", j.id, p.cfg.APIKey)
	for i := 0; i < p.cfg.PollMax; i++ {
		j.attempt = i + 1

		cctx, cancel := context.WithTimeout(ctx, p.cfg.APITimeout)
		reply, code, err := p.getJSON(cctx, ep)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return link{}, ctx.Err()
			}
			return link{}, err
		}

		switch code {
		case http.StatusOK:
		case http.StatusTooManyRequests:
			return link{}, ErrRateLimited
		case http.StatusUnauthorized:
			return link{}, ErrAuthFailure
		default:
			return link{}, fmt.Errorf("primary api: status %d", code)
		}

		switch strings.ToLower(reply.Status) {
		case "done":
			if reply.DownloadURL == "" {
				return link{}, errNoLink
			}
			return link{url: reply.DownloadURL, ext: reply.Format}, nil
		case "downloading":
			if i == p.cfg.PollMax-1 {
				return link{}, errPollExceeded
			}
			if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
				return link{}, err
			}
		case "failed":
			return link{}, fmt.Errorf("primary api: failed: %s", reply.Error)
		default:
			return link{}, fmt.Errorf("primary api: unexpected status %q", reply.Status)
		}
	}
	return link{}, errPollExceeded
}

// askMirror asks one backup mirror for a ready-made link.
func (p *Pipeline) askMirror(ctx context.Context, base, id string) (link, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.MirrorTimeout)
	defer cancel()

	reply, code, err := p.getJSON(cctx, endpoint(base, "backupyt", id, p.cfg.APIKey))
	if err != nil {
		return link{}, err
	}
	if code != http.StatusOK {
		return link{}, fmt.Errorf("mirror: status %d", code)
	}
	if !strings.EqualFold(reply.Status, "done") || reply.DownloadURL == "" {
		return link{}, errNoLink
	}
	return link{url: reply.DownloadURL, ext: reply.Format}, nil
}
