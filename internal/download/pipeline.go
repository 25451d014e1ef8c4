package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tunebot/internal/telemetry"
	"tunebot/pkg/logx"
)

var idPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

// Pipeline resolves a track to a local file, trying the cache, the
// primary API, the backup mirrors and finally the local extractor.
type Pipeline struct {
	cfg       Config
	http      *http.Client
	extractor Extractor
	counters  *telemetry.Counters
	log       logx.Logger

	flights singleflight.Group

	// sleep waits between primary API polls.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a pipeline. ex may be nil, which disables the extractor tier.
func New(cfg Config, ex Extractor, counters *telemetry.Counters, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	if counters == nil {
		counters = telemetry.New()
	}
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		http:      &http.Client{},
		extractor: ex,
		counters:  counters,
		log:       log.With(logx.String("comp", "download")),
		sleep:     sleepCtx,
	}
}

func (p *Pipeline) Config() Config { return p.cfg }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolve returns a size-checked local file for req.
//
// Concurrent calls for the same id and format share one resolution and
// get the same *Result. The shared resolution runs under ResolveTimeout
// and is not cancelled when one of the waiting callers gives up.
func (p *Pipeline) Resolve(ctx context.Context, req TrackRequest) (*Result, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if !idPattern.MatchString(req.ExternalID) {
		return nil, fmt.Errorf("%w: invalid track id %q", ErrUnavailable, req.ExternalID)
	}
	if req.Format == "" {
		req.Format = FormatAudio
	}
	p.counters.Requests.Add(1)

	if res, ok := p.lookupCache(req.ExternalID, req.Format); ok {
		p.counters.CacheHits.Add(1)
		p.log.Debug("cache hit", logx.String("id", req.ExternalID), logx.String("path", res.FilePath))
		return res, nil
	}

	key := string(req.Format) + ":" + req.ExternalID
	ch := p.flights.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ResolveTimeout)
		defer cancel()
		return p.resolve(rctx, req)
	})

	select {
	case <-ctx.Done():
		return nil, collapse(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	}
}

// StreamURL resolves link to a direct media URL through the extractor.
func (p *Pipeline) StreamURL(ctx context.Context, link string, f Format) (string, error) {
	if p.extractor == nil {
		return "", fmt.Errorf("%w: no extractor configured", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()
	return p.extractor.StreamURL(ctx, link, f)
}

// MaxListEntries caps search results and playlist entries.
const MaxListEntries = 10

// Info reads title, uploader and duration of link.
func (p *Pipeline) Info(ctx context.Context, link string) (TrackInfo, error) {
	if p.extractor == nil {
		return TrackInfo{}, fmt.Errorf("%w: no extractor configured", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.LookupTimeout)
	defer cancel()
	ti, err := p.extractor.Info(ctx, link)
	if err != nil {
		return TrackInfo{}, collapse(err)
	}
	return ti, nil
}

// Search returns up to limit tracks matching query.
func (p *Pipeline) Search(ctx context.Context, query string, limit int) ([]TrackInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrUnavailable)
	}
	limit = clampLimit(limit)
	return p.list(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query), limit)
}

// Playlist returns the first limit entries of a playlist link.
func (p *Pipeline) Playlist(ctx context.Context, link string, limit int) ([]TrackInfo, error) {
	return p.list(ctx, link, clampLimit(limit))
}

func (p *Pipeline) list(ctx context.Context, target string, limit int) ([]TrackInfo, error) {
	if p.extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.LookupTimeout)
	defer cancel()
	infos, err := p.extractor.List(ctx, target, limit)
	if err != nil {
		return nil, collapse(err)
	}
	out := infos[:0]
	for _, ti := range infos {
		if idPattern.MatchString(ti.ID) {
			out = append(out, ti)
		}
	}
	return out, nil
}

func clampLimit(n int) int {
	if n <= 0 || n > MaxListEntries {
		return MaxListEntries
	}
	return n
}

func (p *Pipeline) resolve(ctx context.Context, req TrackRequest) (*Result, error) {
	start := time.Now()
	j := &job{id: req.ExternalID, tier: TierCache}
	if dl, ok := ctx.Deadline(); ok {
		j.deadline = dl
	}
	log := p.log.With(logx.String("id", j.id), logx.String("format", string(req.Format)))

	// Another flight may have finished between the fast path and now.
	if res, ok := p.lookupCache(j.id, req.Format); ok {
		p.counters.CacheHits.Add(1)
		return res, nil
	}

	res, err := p.networkTiers(ctx, j, req.Format, log)
	if err != nil {
		log.Error("resolution aborted", logx.String("tier", j.tier.String()), logx.Int("attempt", j.attempt), logx.Err(err))
		return nil, collapse(err)
	}
	if res == nil {
		res, err = p.extractorTier(ctx, j, req, log)
		if err != nil {
			log.Error("resolution aborted", logx.String("tier", j.tier.String()), logx.Err(err))
			return nil, collapse(err)
		}
	}
	if res == nil {
		log.Warn("all tiers exhausted", logx.Duration("took", time.Since(start)))
		return nil, ErrAllTiersExhausted
	}
	log.Info("track resolved", logx.String("tier", res.Tier.String()), logx.Int64("size", res.SizeBytes), logx.Duration("took", time.Since(start)))
	return res, nil
}

func (p *Pipeline) useNetwork(f Format) bool {
	if p.cfg.APIURL == "" && len(p.cfg.Mirrors) == 0 {
		return false
	}
	return f == FormatAudio || p.cfg.VideoViaAPI
}

// networkTiers runs the primary API and the mirrors. It returns (nil, nil)
// when they produced nothing and the extractor should be tried, and a
// non-nil error only for pipeline-fatal failures.
func (p *Pipeline) networkTiers(ctx context.Context, j *job, f Format, log logx.Logger) (*Result, error) {
	if !p.useNetwork(f) {
		return nil, nil
	}

	if p.cfg.APIURL != "" {
		j.advance(TierPrimaryAPI)
		p.counters.APIRequests.Add(1)
		lk, err := p.pollPrimary(ctx, j)
		switch {
		case err != nil && fatal(ctx, err):
			p.counters.APIFailed.Add(1)
			return nil, &TierError{Tier: TierPrimaryAPI, Err: err}
		case err != nil:
			if errors.Is(err, errPollExceeded) || errors.Is(err, errNoLink) {
				p.counters.LinkExtractFailed.Add(1)
			}
			log.Warn("tier failed", logx.String("tier", TierPrimaryAPI.String()), logx.Int("polls", j.attempt), logx.Err(err))
		default:
			res, err := p.fetchLink(ctx, j, f, lk, TierPrimaryAPI)
			if err == nil {
				return res, nil
			}
			if fatal(ctx, err) {
				return nil, &TierError{Tier: TierPrimaryAPI, Err: err}
			}
			log.Warn("tier failed", logx.String("tier", TierPrimaryAPI.String()), logx.Err(err))
		}
	}

	j.advance(TierBackupMirror)
	for i, base := range p.cfg.Mirrors {
		j.attempt = i + 1
		lk, err := p.askMirror(ctx, base, j.id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TierError{Tier: TierBackupMirror, Err: ctx.Err()}
			}
			log.Debug("mirror miss", logx.String("mirror", base), logx.Err(err))
			continue
		}
		p.counters.MirrorHits.Add(1)
		res, err := p.fetchLink(ctx, j, f, lk, TierBackupMirror)
		if err == nil {
			return res, nil
		}
		if fatal(ctx, err) {
			return nil, &TierError{Tier: TierBackupMirror, Err: err}
		}
		log.Warn("tier failed", logx.String("tier", TierBackupMirror.String()), logx.String("mirror", base), logx.Err(err))
	}
	if p.cfg.APIURL != "" {
		p.counters.APIFailed.Add(1)
	}
	return nil, nil
}

func (p *Pipeline) fetchLink(ctx context.Context, j *job, f Format, lk link, tier Tier) (*Result, error) {
	final := filepath.Join(p.formatDir(f), j.id+"."+cacheExt(f, lk.ext))
	n, err := p.fetch(ctx, lk.url, final)
	if err != nil {
		return nil, err
	}
	p.counters.APIDownloaded.Add(1)
	return &Result{FilePath: final, Format: f, SizeBytes: n, Tier: tier}, nil
}

func (p *Pipeline) extractorTier(ctx context.Context, j *job, req TrackRequest, log logx.Logger) (*Result, error) {
	if p.extractor == nil {
		return nil, nil
	}
	j.advance(TierLocalExtractor)
	j.attempt = 1
	p.counters.ExtractorRequests.Add(1)

	dir := p.formatDir(req.Format)
	path, err := p.extractor.Download(ctx, req.link(), req.Format, filepath.Join(dir, j.id+".%(ext)s"))
	if err != nil {
		p.counters.ExtractorFailed.Add(1)
		if ctx.Err() != nil {
			return nil, &TierError{Tier: TierLocalExtractor, Err: ctx.Err()}
		}
		log.Warn("tier failed", logx.String("tier", TierLocalExtractor.String()), logx.Err(err))
		return nil, nil
	}

	st, err := os.Stat(path)
	if err != nil {
		p.counters.ExtractorFailed.Add(1)
		log.Warn("tier failed", logx.String("tier", TierLocalExtractor.String()), logx.Err(err))
		return nil, nil
	}
	if st.Size() < MinValidSize {
		p.counters.ExtractorFailed.Add(1)
		p.counters.Corrupt.Add(1)
		_ = os.Remove(path)
		log.Warn("tier failed", logx.String("tier", TierLocalExtractor.String()),
			logx.Err(fmt.Errorf("%w: got %d bytes", ErrCorrupt, st.Size())))
		return nil, nil
	}
	if path, err = p.adoptExtractorFile(j.id, req.Format, path); err != nil {
		p.counters.ExtractorFailed.Add(1)
		_ = os.Remove(path)
		log.Warn("tier failed", logx.String("tier", TierLocalExtractor.String()), logx.Err(err))
		return nil, nil
	}
	p.counters.ExtractorDownloaded.Add(1)
	return &Result{FilePath: path, Format: req.Format, SizeBytes: st.Size(), Tier: TierLocalExtractor}, nil
}

// adoptExtractorFile renames an extractor output whose extension the cache
// tier would not look for.
func (p *Pipeline) adoptExtractorFile(id string, f Format, path string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if want := cacheExt(f, ext); want != ext {
		final := filepath.Join(p.formatDir(f), id+"."+want)
		if err := os.Rename(path, final); err != nil {
			return path, err
		}
		return final, nil
	}
	return path, nil
}
