package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tunebot/pkg/logx"
)

// Extractor is the local last-resort tier.
type Extractor interface {
	// Download fetches link into outTemplate and returns the final path.
	Download(ctx context.Context, link string, f Format, outTemplate string) (string, error)
	// StreamURL resolves link to a direct media URL without downloading.
	StreamURL(ctx context.Context, link string, f Format) (string, error)
	// Info reads the metadata of a single track.
	Info(ctx context.Context, link string) (TrackInfo, error)
	// List returns up to limit entries of a playlist link or search target.
	List(ctx context.Context, target string, limit int) ([]TrackInfo, error)
}

const (
	audioSelector  = "bestaudio/best"
	videoSelector  = "(bestvideo[height<=?720][width<=?1280][ext=mp4])+(bestaudio[ext=m4a])"
	streamSelector = "best[height<=?720][width<=?1280]"
	audioStream    = "bestaudio/best"
)

// buildArgs returns the yt-dlp arguments for a download of link.
func buildArgs(link string, f Format, outTemplate, cookiePath string) []string {
	args := []string{
		"--no-playlist",
		"--geo-bypass",
		"--no-check-certificates",
		"--no-warnings",
		"--no-progress",
		"-o", outTemplate,
		"--print", "after_move:filepath",
	}
	if f == FormatVideo {
		args = append(args, "-f", videoSelector, "--merge-output-format", "mp4")
	} else {
		args = append(args, "-f", audioSelector)
	}
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	return append(args, "--", link)
}

// buildStreamArgs returns the yt-dlp arguments that print a direct URL.
func buildStreamArgs(link string, f Format, cookiePath string) []string {
	sel := streamSelector
	if f == FormatAudio {
		sel = audioStream
	}
	args := []string{"--no-playlist", "--no-warnings", "-g", "-f", sel}
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	return append(args, "--", link)
}

// infoTemplate prints one tab-separated line per entry. The title goes
// last since it may contain tabs itself.
const infoTemplate = "%(id)s\t%(duration|0)s\t%(channel,uploader|)s\t%(title)s"

func buildInfoArgs(link, cookiePath string) []string {
	args := []string{"--no-playlist", "--no-warnings", "--skip-download", "--print", infoTemplate}
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	return append(args, "--", link)
}

func buildListArgs(target string, limit int, cookiePath string) []string {
	args := []string{"--flat-playlist", "--no-warnings", "--playlist-end", strconv.Itoa(limit), "--print", infoTemplate}
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	return append(args, "--", target)
}

// parseInfoLines reads infoTemplate output. Lines without an id are skipped.
func parseInfoLines(out string) []TrackInfo {
	var infos []TrackInfo
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimRight(line, "\r"), "\t", 4)
		if len(parts) < 4 || strings.TrimSpace(parts[0]) == "" || parts[0] == "NA" {
			continue
		}
		ti := TrackInfo{ID: strings.TrimSpace(parts[0]), Uploader: strings.TrimSpace(parts[2]), Title: strings.TrimSpace(parts[3])}
		if ti.Title == "NA" {
			ti.Title = ""
		}
		if secs, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil && secs > 0 {
			ti.Duration = time.Duration(secs * float64(time.Second))
		}
		infos = append(infos, ti)
	}
	return infos
}

// YTDLP runs the yt-dlp binary.
type YTDLP struct {
	Binary     string
	CookiesDir string
	Log        logx.Logger

	// pick returns an index in [0,n). Tests replace it.
	pick func(n int) int
}

func NewYTDLP(binary, cookiesDir string, log logx.Logger) *YTDLP {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	return &YTDLP{Binary: binary, CookiesDir: cookiesDir, Log: log, pick: rand.IntN}
}

// cookieFiles lists *.txt files of the cookie pool, sorted.
func (y *YTDLP) cookieFiles() []string {
	if strings.TrimSpace(y.CookiesDir) == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(y.CookiesDir, "*.txt"))
	if err != nil {
		return nil
	}
	sort.Strings(files)
	return files
}

// chooseCookie picks a cookie file uniformly at random, skipping exclude
// when another file is available.
func (y *YTDLP) chooseCookie(exclude string) string {
	files := y.cookieFiles()
	if exclude != "" && len(files) > 1 {
		kept := files[:0:0]
		for _, f := range files {
			if f != exclude {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	if len(files) == 0 {
		return ""
	}
	pick := y.pick
	if pick == nil {
		pick = rand.IntN
	}
	return files[pick(len(files))]
}

// authMarkers are stderr fragments meaning the cookie was rejected.
var authMarkers = []string{
	"sign in to confirm",
	"confirm you're not a bot",
	"cookies are no longer valid",
	"http error 403",
	"login required",
}

func isAuthFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, m := range authMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Download runs yt-dlp once and, if the failure looks like a rejected
// cookie, once more with a different cookie file.
func (y *YTDLP) Download(ctx context.Context, link string, f Format, outTemplate string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outTemplate), 0o755); err != nil {
		return "", err
	}
	cookie := y.chooseCookie("")
	out, stderr, err := y.run(ctx, buildArgs(link, f, outTemplate, cookie))
	if err != nil && cookie != "" && isAuthFailure(stderr) {
		next := y.chooseCookie(cookie)
		if next != "" && next != cookie {
			y.Log.Warn("extractor cookie rejected, retrying with another",
				logx.String("cookie", filepath.Base(cookie)), logx.String("next", filepath.Base(next)))
			out, stderr, err = y.run(ctx, buildArgs(link, f, outTemplate, next))
		}
	}
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr))
	}
	path := lastLine(out)
	if path == "" {
		return "", errors.New("yt-dlp: no output path printed")
	}
	return path, nil
}

func (y *YTDLP) StreamURL(ctx context.Context, link string, f Format) (string, error) {
	out, stderr, err := y.run(ctx, buildStreamArgs(link, f, y.chooseCookie("")))
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr))
	}
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", errors.New("yt-dlp: no url printed")
}

func (y *YTDLP) Info(ctx context.Context, link string) (TrackInfo, error) {
	out, stderr, err := y.run(ctx, buildInfoArgs(link, y.chooseCookie("")))
	if err != nil {
		return TrackInfo{}, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr))
	}
	infos := parseInfoLines(out)
	if len(infos) == 0 {
		return TrackInfo{}, errors.New("yt-dlp: no metadata printed")
	}
	return infos[0], nil
}

func (y *YTDLP) List(ctx context.Context, target string, limit int) ([]TrackInfo, error) {
	if limit <= 0 {
		limit = 5
	}
	out, stderr, err := y.run(ctx, buildListArgs(target, limit, y.chooseCookie("")))
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr))
	}
	infos := parseInfoLines(out)
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func (y *YTDLP) run(ctx context.Context, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, y.Binary, args...)
	stdout := &cappedBuffer{limit: 64 * 1024}
	stderr := &cappedBuffer{limit: 8 * 1024}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stdout.String(), stderr.String(), err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }
