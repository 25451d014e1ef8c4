package download

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"tunebot/pkg/logx"
)

// The cache tier only looks for these extensions, so every file the
// pipeline writes must carry one of them.
var (
	audioExts = []string{"mp3", "m4a", "webm", "opus", "ogg", "aac", "mp4"}
	videoExts = []string{"mp4", "mkv", "webm"}
)

// fallbackExt is a member of both candidate lists.
const fallbackExt = "webm"

func (p *Pipeline) formatDir(f Format) string {
	if f == FormatVideo {
		return filepath.Join(p.cfg.Dir, "video")
	}
	return p.cfg.Dir
}

func candidateExts(f Format) []string {
	if f == FormatVideo {
		return videoExts
	}
	return audioExts
}

// cacheExt maps an extension reported by an API or extractor onto the
// candidate list of f. Anything outside it becomes fallbackExt.
func cacheExt(f Format, raw string) string {
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
	if slices.Contains(candidateExts(f), ext) {
		return ext
	}
	return fallbackExt
}

// lookupCache returns a cached file for id. Undersized files are removed
// and treated as a miss.
func (p *Pipeline) lookupCache(id string, f Format) (*Result, bool) {
	dir := p.formatDir(f)
	for _, ext := range candidateExts(f) {
		path := filepath.Join(dir, id+"."+ext)
		st, err := os.Stat(path)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		if st.Size() < MinValidSize {
			p.counters.Corrupt.Add(1)
			p.log.Warn("discarding undersized cache entry", logx.String("path", path), logx.Int64("size", st.Size()))
			_ = os.Remove(path)
			continue
		}
		return &Result{FilePath: path, Format: f, SizeBytes: st.Size(), Tier: TierCache}, true
	}
	return nil, false
}
