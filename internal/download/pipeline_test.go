package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tunebot/internal/telemetry"
	"tunebot/pkg/logx"
)

var payload = bytes.Repeat([]byte("a"), 20*1024)

type fakeAPI struct {
	t *testing.T

	songReplies []string // consumed in order, the last one repeats
	songCode    int
	mirrorReply string
	mirrorCode  int
	fileBody    []byte

	// gate, when set, blocks /song until closed.
	gate    chan struct{}
	entered chan struct{}

	songHits   atomic.Int32
	mirrorHits atomic.Int32
	fileHits   atomic.Int32
}

func (f *fakeAPI) handler(base func() string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/song/", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.songHits.Add(1))
		if r.URL.Query().Get("key") != "k" {
			f.t.Errorf("expected api key in query, got %q", r.URL.RawQuery)
		}
		if f.entered != nil && n == 1 {
			close(f.entered)
		}
		if f.gate != nil {
			<-f.gate
		}
		if f.songCode != 0 && f.songCode != http.StatusOK {
			w.WriteHeader(f.songCode)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		i := n - 1
		if i >= len(f.songReplies) {
			i = len(f.songReplies) - 1
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(f.songReplies[i], "{base}", base())))
	})
	mux.HandleFunc("/backupyt/", func(w http.ResponseWriter, r *http.Request) {
		f.mirrorHits.Add(1)
		if f.mirrorCode != 0 && f.mirrorCode != http.StatusOK {
			w.WriteHeader(f.mirrorCode)
			return
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(f.mirrorReply, "{base}", base())))
	})
	mux.HandleFunc("/file/", func(w http.ResponseWriter, r *http.Request) {
		f.fileHits.Add(1)
		_, _ = w.Write(f.fileBody)
	})
	return mux
}

func newServer(t *testing.T, f *fakeAPI) *httptest.Server {
	t.Helper()
	f.t = t
	if f.fileBody == nil {
		f.fileBody = payload
	}
	var ts *httptest.Server
	ts = httptest.NewServer(f.handler(func() string { return ts.URL }))
	t.Cleanup(ts.Close)
	return ts
}

type fakeExtractor struct {
	calls atomic.Int32
	size  int
	err   error

	mu      sync.Mutex
	infos   []TrackInfo
	targets []string
	limits  []int
}

func (e *fakeExtractor) Download(_ context.Context, _ string, _ Format, outTemplate string) (string, error) {
	e.calls.Add(1)
	if e.err != nil {
		return "", e.err
	}
	path := strings.Replace(outTemplate, "%(ext)s", "m4a", 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, bytes.Repeat([]byte("x"), e.size), 0o644)
}

func (e *fakeExtractor) StreamURL(context.Context, string, Format) (string, error) {
	return "https://cdn.example/stream", nil
}

func (e *fakeExtractor) Info(_ context.Context, link string) (TrackInfo, error) {
	if e.err != nil {
		return TrackInfo{}, e.err
	}
	return TrackInfo{ID: "abc123", Title: "Title of " + link}, nil
}

func (e *fakeExtractor) List(_ context.Context, target string, limit int) ([]TrackInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets = append(e.targets, target)
	e.limits = append(e.limits, limit)
	if e.err != nil {
		return nil, e.err
	}
	return append([]TrackInfo(nil), e.infos...), nil
}

type sleepCounter struct {
	n atomic.Int32
}

func (s *sleepCounter) sleep(ctx context.Context, _ time.Duration) error {
	s.n.Add(1)
	return ctx.Err()
}

func newPipeline(t *testing.T, cfg Config, ex Extractor) (*Pipeline, *sleepCounter) {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "k"
	}
	p := New(cfg, ex, telemetry.New(), logx.Nop())
	sc := &sleepCounter{}
	p.sleep = sc.sleep
	return p, sc
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	parts, _ := filepath.Glob(filepath.Join(dir, "*.part"))
	if len(parts) != 0 {
		t.Fatalf("expected no partial files, got %v", parts)
	}
}

func TestCacheHitSkipsNetwork(t *testing.T) {
	api := &fakeAPI{songReplies: []string{`{"status":"done","download_url":"{base}/file/x","format":"mp3"}`}}
	ts := newServer(t, api)
	ex := &fakeExtractor{size: len(payload)}
	p, _ := newPipeline(t, Config{APIURL: ts.URL}, ex)

	path := filepath.Join(p.cfg.Dir, "abc123.m4a")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierCache || res.FilePath != path {
		t.Fatalf("expected cache hit at %s, got %+v", path, res)
	}
	if api.songHits.Load()+api.mirrorHits.Load()+api.fileHits.Load() != 0 || ex.calls.Load() != 0 {
		t.Fatalf("expected no network or extractor calls on cache hit")
	}
	if got := p.counters.CacheHits.Load(); got != 1 {
		t.Fatalf("expected 1 cache hit, got %d", got)
	}
}

func TestUndersizedCacheEntryIsDiscarded(t *testing.T) {
	p, _ := newPipeline(t, Config{Mirrors: []string{}}, &fakeExtractor{size: len(payload)})
	stale := filepath.Join(p.cfg.Dir, "abc123.mp3")
	if err := os.WriteFile(stale, []byte("tiny"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierLocalExtractor {
		t.Fatalf("expected extractor tier, got %s", res.Tier)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected undersized cache file to be removed, stat err=%v", err)
	}
}

func TestPrimaryPollsUntilDone(t *testing.T) {
	api := &fakeAPI{songReplies: []string{
		`{"status":"downloading"}`,
		`{"status":"downloading"}`,
		`{"status":"done","download_url":"{base}/file/abc123","format":"mp3"}`,
	}}
	ts := newServer(t, api)
	p, sc := newPipeline(t, Config{APIURL: ts.URL}, nil)

	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierPrimaryAPI {
		t.Fatalf("expected primary tier, got %s", res.Tier)
	}
	if got := sc.n.Load(); got != 2 {
		t.Fatalf("expected 2 poll sleeps, got %d", got)
	}
	if got := api.songHits.Load(); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
	if res.SizeBytes != int64(len(payload)) || filepath.Base(res.FilePath) != "abc123.mp3" {
		t.Fatalf("unexpected result %+v", res)
	}
	if api.mirrorHits.Load() != 0 {
		t.Fatalf("expected no mirror request after primary success")
	}
	assertNoPartials(t, p.cfg.Dir)
}

func TestPollBudgetExhaustedFallsBackToMirror(t *testing.T) {
	api := &fakeAPI{
		songReplies: []string{`{"status":"downloading"}`},
		mirrorReply: `{"status":"done","download_url":"{base}/file/abc123"}`,
	}
	ts := newServer(t, api)
	p, sc := newPipeline(t, Config{APIURL: ts.URL, PollMax: 3}, nil)

	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierBackupMirror {
		t.Fatalf("expected mirror tier, got %s", res.Tier)
	}
	if got := api.songHits.Load(); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
	// No sleep after the last poll.
	if got := sc.n.Load(); got != 2 {
		t.Fatalf("expected 2 sleeps, got %d", got)
	}
	if got := p.counters.LinkExtractFailed.Load(); got != 1 {
		t.Fatalf("expected link extract failure to be counted, got %d", got)
	}
}

func TestPrimaryFailedStatusSkipsRemainingPolls(t *testing.T) {
	api := &fakeAPI{
		songReplies: []string{`{"status":"failed","error":"gone"}`},
		mirrorReply: `{"status":"done","download_url":"{base}/file/abc123"}`,
	}
	ts := newServer(t, api)
	p, sc := newPipeline(t, Config{APIURL: ts.URL}, nil)

	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierBackupMirror || api.songHits.Load() != 1 || sc.n.Load() != 0 {
		t.Fatalf("expected one poll then mirror, got tier=%s polls=%d sleeps=%d", res.Tier, api.songHits.Load(), sc.n.Load())
	}
}

func TestFatalPrimaryErrorsSkipOtherTiers(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusUnauthorized, ErrAuthFailure},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			api := &fakeAPI{songCode: tc.code, mirrorReply: `{"status":"done","download_url":"{base}/file/abc123"}`}
			ts := newServer(t, api)
			ex := &fakeExtractor{size: len(payload)}
			p, _ := newPipeline(t, Config{APIURL: ts.URL}, ex)

			_, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var te *TierError
			if !errors.As(err, &te) || te.Tier != TierPrimaryAPI {
				t.Fatalf("expected primary tier error, got %v", err)
			}
			if api.mirrorHits.Load() != 0 || ex.calls.Load() != 0 {
				t.Fatalf("expected no mirror or extractor attempt, got mirror=%d extractor=%d", api.mirrorHits.Load(), ex.calls.Load())
			}
		})
	}
}

func TestOtherStatusFallsThrough(t *testing.T) {
	api := &fakeAPI{songCode: http.StatusBadGateway, mirrorCode: http.StatusNotFound}
	ts := newServer(t, api)
	ex := &fakeExtractor{size: len(payload)}
	p, _ := newPipeline(t, Config{APIURL: ts.URL}, ex)

	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierLocalExtractor || api.mirrorHits.Load() != 1 {
		t.Fatalf("expected mirror request then extractor, got tier=%s mirror=%d", res.Tier, api.mirrorHits.Load())
	}
}

func TestCorruptDownloadLeavesNoFile(t *testing.T) {
	api := &fakeAPI{
		songReplies: []string{`{"status":"done","download_url":"{base}/file/abc123","format":"mp3"}`},
		fileBody:    bytes.Repeat([]byte("a"), MinValidSize-1),
	}
	ts := newServer(t, api)
	p, _ := newPipeline(t, Config{APIURL: ts.URL, Mirrors: []string{}}, nil)

	_, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if !errors.Is(err, ErrAllTiersExhausted) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected all tiers exhausted, got %v", err)
	}
	entries, _ := os.ReadDir(p.cfg.Dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty cache dir, got %d entries", len(entries))
	}
	if got := p.counters.Corrupt.Load(); got != 1 {
		t.Fatalf("expected 1 corrupt file, got %d", got)
	}
}

func TestExtractorUndersizedOutputIsRejected(t *testing.T) {
	ex := &fakeExtractor{size: 512}
	p, _ := newPipeline(t, Config{}, ex)

	_, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if !errors.Is(err, ErrAllTiersExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(p.cfg.Dir, "abc123.m4a")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected undersized extractor output to be removed")
	}
}

func TestVideoSkipsNetworkByDefault(t *testing.T) {
	api := &fakeAPI{songReplies: []string{`{"status":"done","download_url":"{base}/file/abc123"}`}}
	ts := newServer(t, api)
	ex := &fakeExtractor{size: len(payload)}
	p, _ := newPipeline(t, Config{APIURL: ts.URL}, ex)

	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123", Format: FormatVideo})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierLocalExtractor || api.songHits.Load() != 0 {
		t.Fatalf("expected extractor-only video resolution, got tier=%s polls=%d", res.Tier, api.songHits.Load())
	}
	if filepath.Dir(res.FilePath) != filepath.Join(p.cfg.Dir, "video") {
		t.Fatalf("expected video subdir, got %s", res.FilePath)
	}
}

func TestConcurrentResolvesShareOneDownload(t *testing.T) {
	api := &fakeAPI{
		songReplies: []string{`{"status":"done","download_url":"{base}/file/abc123","format":"mp3"}`},
		gate:        make(chan struct{}),
		entered:     make(chan struct{}),
	}
	ts := newServer(t, api)
	p, _ := newPipeline(t, Config{APIURL: ts.URL}, nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
		}(i)
	}
	<-api.entered
	time.Sleep(50 * time.Millisecond)
	close(api.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d got %p, expected the shared result %p", i, results[i], results[0])
		}
	}
	if got := api.fileHits.Load(); got != 1 {
		t.Fatalf("expected a single download, got %d", got)
	}
	if got := api.songHits.Load(); got != 1 {
		t.Fatalf("expected a single api poll, got %d", got)
	}
}

func TestCancelledWaiterDoesNotAbortFlight(t *testing.T) {
	api := &fakeAPI{
		songReplies: []string{`{"status":"done","download_url":"{base}/file/abc123","format":"mp3"}`},
		gate:        make(chan struct{}),
		entered:     make(chan struct{}),
	}
	ts := newServer(t, api)
	p, _ := newPipeline(t, Config{APIURL: ts.URL}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Resolve(ctx, TrackRequest{ExternalID: "abc123"})
		errCh <- err
	}()
	<-api.entered
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled waiter, got %v", err)
	}

	done := make(chan *Result, 1)
	go func() {
		res, _ := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
		done <- res
	}()
	close(api.gate)
	res := <-done
	if res == nil || res.Tier == TierLocalExtractor {
		t.Fatalf("expected flight to complete, got %+v", res)
	}
	if got := api.fileHits.Load(); got != 1 {
		t.Fatalf("expected one download, got %d", got)
	}
}

func TestInvalidIDRejected(t *testing.T) {
	p, _ := newPipeline(t, Config{}, nil)
	for _, id := range []string{"", "../etc/passwd", "a b"} {
		if _, err := p.Resolve(context.Background(), TrackRequest{ExternalID: id}); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("id %q: expected ErrUnavailable, got %v", id, err)
		}
	}
}

func TestCacheExt(t *testing.T) {
	cases := []struct {
		f    Format
		in   string
		want string
	}{
		{FormatAudio, "mp3", "mp3"},
		{FormatAudio, ".M4A", "m4a"},
		{FormatAudio, "ogg", "ogg"},
		{FormatAudio, "flac", "webm"},
		{FormatAudio, "", "webm"},
		{FormatAudio, "../x", "webm"},
		{FormatVideo, "mkv", "mkv"},
		{FormatVideo, "mp3", "webm"},
	}
	for _, tc := range cases {
		if got := cacheExt(tc.f, tc.in); got != tc.want {
			t.Fatalf("cacheExt(%s, %q): expected %q, got %q", tc.f, tc.in, tc.want, got)
		}
	}
}

func TestAPIFormatLandsInCache(t *testing.T) {
	for _, format := range []string{"ogg", "flac"} {
		t.Run(format, func(t *testing.T) {
			api := &fakeAPI{songReplies: []string{`{"status":"done","download_url":"{base}/file/abc123","format":"` + format + `"}`}}
			ts := newServer(t, api)
			p, _ := newPipeline(t, Config{APIURL: ts.URL}, nil)

			first, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
			if err != nil {
				t.Fatalf("first resolve: %v", err)
			}
			if first.Tier != TierPrimaryAPI {
				t.Fatalf("expected primary tier, got %s", first.Tier)
			}
			second, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
			if err != nil {
				t.Fatalf("second resolve: %v", err)
			}
			if second.Tier != TierCache || second.FilePath != first.FilePath {
				t.Fatalf("expected cache hit at %s, got %+v", first.FilePath, second)
			}
			if got := api.fileHits.Load(); got != 1 {
				t.Fatalf("expected one download, got %d", got)
			}
		})
	}
}

func TestExtractorOutputIsRenamedForCache(t *testing.T) {
	ex := &renamingExtractor{ext: "flac"}
	p, _ := newPipeline(t, Config{}, ex)

	res, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Base(res.FilePath) != "abc123.webm" {
		t.Fatalf("expected abc123.webm, got %s", res.FilePath)
	}
	again, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if err != nil || again.Tier != TierCache {
		t.Fatalf("expected cache hit, got %+v err=%v", again, err)
	}
}

type renamingExtractor struct{ ext string }

func (e *renamingExtractor) Download(_ context.Context, _ string, _ Format, outTemplate string) (string, error) {
	path := strings.Replace(outTemplate, "%(ext)s", e.ext, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, payload, 0o644)
}

func (e *renamingExtractor) StreamURL(context.Context, string, Format) (string, error) {
	return "", errors.New("not supported")
}

func (e *renamingExtractor) Info(context.Context, string) (TrackInfo, error) {
	return TrackInfo{}, errors.New("not supported")
}

func (e *renamingExtractor) List(context.Context, string, int) ([]TrackInfo, error) {
	return nil, errors.New("not supported")
}

func TestResolveTimeoutIsUnavailable(t *testing.T) {
	api := &fakeAPI{
		songReplies: []string{`{"status":"done","download_url":"{base}/file/abc123"}`},
		gate:        make(chan struct{}),
	}
	ts := newServer(t, api)
	t.Cleanup(func() { close(api.gate) })
	p, _ := newPipeline(t, Config{APIURL: ts.URL, ResolveTimeout: 100 * time.Millisecond}, nil)

	_, err := p.Resolve(context.Background(), TrackRequest{ExternalID: "abc123"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the deadline to stay in the chain, got %v", err)
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected a plain unavailable error, got %v", err)
	}
}

func TestCancelledCallerIsUnavailable(t *testing.T) {
	p, _ := newPipeline(t, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Resolve(ctx, TrackRequest{ExternalID: "abc123"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSearchBuildsQueryAndFiltersIDs(t *testing.T) {
	ex := &fakeExtractor{infos: []TrackInfo{
		{ID: "dQw4w9WgXcQ", Title: "one"},
		{ID: "bad id!", Title: "two"},
		{ID: "yPYZpwSpKmA", Title: "three"},
	}}
	p, _ := newPipeline(t, Config{}, ex)

	got, err := p.Search(context.Background(), "  never gonna  ", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].ID != "dQw4w9WgXcQ" || got[1].ID != "yPYZpwSpKmA" {
		t.Fatalf("expected two valid hits, got %+v", got)
	}
	if ex.targets[0] != "ytsearch5:never gonna" || ex.limits[0] != 5 {
		t.Fatalf("expected ytsearch5 query, got %v %v", ex.targets, ex.limits)
	}

	if _, err := p.Search(context.Background(), "x", 500); err != nil {
		t.Fatalf("search: %v", err)
	}
	if ex.limits[1] != MaxListEntries {
		t.Fatalf("expected limit capped at %d, got %d", MaxListEntries, ex.limits[1])
	}

	if _, err := p.Search(context.Background(), "   ", 5); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected empty query to be unavailable, got %v", err)
	}
}

func TestPlaylistPassesLink(t *testing.T) {
	ex := &fakeExtractor{infos: []TrackInfo{{ID: "dQw4w9WgXcQ"}}}
	p, _ := newPipeline(t, Config{}, ex)

	got, err := p.Playlist(context.Background(), "https://www.youtube.com/playlist?list=PL1", 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one entry, got %+v err=%v", got, err)
	}
	if ex.targets[0] != "https://www.youtube.com/playlist?list=PL1" {
		t.Fatalf("expected playlist link passed through, got %v", ex.targets)
	}
}

func TestLookupsWithoutExtractor(t *testing.T) {
	p, _ := newPipeline(t, Config{}, nil)
	ctx := context.Background()
	if _, err := p.Info(ctx, "https://youtu.be/dQw4w9WgXcQ"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected info to be unavailable, got %v", err)
	}
	if _, err := p.Search(ctx, "song", 5); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected search to be unavailable, got %v", err)
	}
	if _, err := p.Playlist(ctx, "https://www.youtube.com/playlist?list=PL1", 5); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected playlist to be unavailable, got %v", err)
	}
}

func TestListErrorIsUnavailable(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("yt-dlp: exit status 1")}
	p, _ := newPipeline(t, Config{}, ex)
	if _, err := p.Search(context.Background(), "song", 5); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected extractor failure to be unavailable, got %v", err)
	}
}
