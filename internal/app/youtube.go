package app

import (
	"regexp"
	"strings"
)

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/(?:embed/|v/|shorts/|live/|watch\?v=|watch\?.+&v=)([0-9A-Za-z_-]{11})`),
		regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
		regexp.MustCompile(`youtube\.com/(?:.*\?v=|.*/)([0-9A-Za-z_-]{11})`),
	}
	bareVideoID = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	playlistID  = regexp.MustCompile(`[?&]list=([0-9A-Za-z_-]+)`)
)

// ExtractVideoID returns the YouTube video id in s, which may be a link in
// any of the usual shapes or a bare 11 character id.
func ExtractVideoID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if bareVideoID.MatchString(s) {
		return s, true
	}
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// watchURL is the canonical link for id.
func watchURL(id string) string { return "https://www.youtube.com/watch?v=" + id }

// ExtractPlaylistID returns the playlist id of a link carrying a list
// parameter.
func ExtractPlaylistID(s string) (string, bool) {
	if m := playlistID.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return m[1], true
	}
	return "", false
}

func playlistURL(id string) string { return "https://www.youtube.com/playlist?list=" + id }
