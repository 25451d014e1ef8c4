package telemetry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tunebot"

type counterSpec struct {
	subsystem string
	name      string
	help      string
	v         *atomic.Int64
}

func (c *Counters) specs() []counterSpec {
	return []counterSpec{
		{"download", "requests_total", "Resolutions requested.", &c.Requests},
		{"download", "cache_hits_total", "Resolutions served from the local cache.", &c.CacheHits},
		{"download", "api_requests_total", "Primary API resolutions attempted.", &c.APIRequests},
		{"download", "api_downloaded_total", "Files fetched from an API-provided URL.", &c.APIDownloaded},
		{"download", "api_failed_total", "Primary API attempts that failed.", &c.APIFailed},
		{"download", "api_link_extract_failed_total", "Primary API polls that ended without a URL.", &c.LinkExtractFailed},
		{"download", "mirror_hits_total", "URLs obtained from a backup mirror.", &c.MirrorHits},
		{"download", "extractor_requests_total", "Local extractor invocations.", &c.ExtractorRequests},
		{"download", "extractor_downloaded_total", "Files produced by the local extractor.", &c.ExtractorDownloaded},
		{"download", "extractor_failed_total", "Local extractor failures.", &c.ExtractorFailed},
		{"download", "corrupt_total", "Files discarded for being below the size threshold.", &c.Corrupt},
		{"broadcast", "sent_users_total", "Broadcast deliveries to users.", &c.BroadcastSentUsers},
		{"broadcast", "sent_chats_total", "Broadcast deliveries to chats.", &c.BroadcastSentChats},
		{"broadcast", "failed_total", "Broadcast recipients that ended failed.", &c.BroadcastFailed},
	}
}

// Register exports every counter on reg as a CounterFunc reading the
// atomic value, so the hot path never touches prometheus.
func (c *Counters) Register(reg prometheus.Registerer) error {
	for _, s := range c.specs() {
		v := s.v
		cf := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: s.subsystem,
			Name:      s.name,
			Help:      s.help,
		}, func() float64 { return float64(v.Load()) })
		if err := reg.Register(cf); err != nil {
			return err
		}
	}
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the counters were created.",
	}, func() float64 { return c.Snapshot().Uptime.Seconds() })
	return reg.Register(uptime)
}
