package download

import (
	"strings"
	"time"
)

type Config struct {
	// Dir holds cached media. Video files live under Dir/video.
	Dir string

	APIURL string
	APIKey string
	// Mirrors are backup bases tried in order after the primary API.
	// Nil means "the primary base only"; an empty non-nil slice disables them.
	Mirrors []string

	PollInterval   time.Duration
	PollMax        int
	APITimeout     time.Duration
	MirrorTimeout  time.Duration
	FetchTimeout   time.Duration
	ResolveTimeout time.Duration
	// LookupTimeout bounds metadata, search and playlist queries.
	LookupTimeout time.Duration

	// VideoViaAPI lets video requests use the network tiers too.
	VideoViaAPI bool
}

const maxMirrorTimeout = 5 * time.Second

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Dir) == "" {
		c.Dir = "downloads"
	}
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.Mirrors == nil && c.APIURL != "" {
		c.Mirrors = []string{c.APIURL}
	}
	mirrors := make([]string, 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		if m = strings.TrimRight(strings.TrimSpace(m), "/"); m != "" {
			mirrors = append(mirrors, m)
		}
	}
	c.Mirrors = mirrors
	if c.PollInterval <= 0 {
		c.PollInterval = 4 * time.Second
	}
	if c.PollMax <= 0 {
		c.PollMax = 7
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.MirrorTimeout <= 0 || c.MirrorTimeout > maxMirrorTimeout {
		c.MirrorTimeout = maxMirrorTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 2 * time.Minute
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 3 * time.Minute
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 30 * time.Second
	}
	return c
}
