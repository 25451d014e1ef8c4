// Package telemetry holds the process counters shared by the download
// pipeline and the broadcast dispatcher. A *Counters is created once and
// passed explicitly to each component.
package telemetry

import (
	"sync/atomic"
	"time"
)

type Counters struct {
	started time.Time

	// download pipeline
	Requests            atomic.Int64
	CacheHits           atomic.Int64
	APIRequests         atomic.Int64
	APIDownloaded       atomic.Int64
	APIFailed           atomic.Int64
	LinkExtractFailed   atomic.Int64
	MirrorHits          atomic.Int64
	ExtractorRequests   atomic.Int64
	ExtractorDownloaded atomic.Int64
	ExtractorFailed     atomic.Int64
	Corrupt             atomic.Int64

	// broadcast dispatcher
	BroadcastSentUsers atomic.Int64
	BroadcastSentChats atomic.Int64
	BroadcastFailed    atomic.Int64
}

func New() *Counters {
	return &Counters{started: time.Now()}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Uptime time.Duration

	Requests            int64
	CacheHits           int64
	APIRequests         int64
	APIDownloaded       int64
	APIFailed           int64
	LinkExtractFailed   int64
	MirrorHits          int64
	ExtractorRequests   int64
	ExtractorDownloaded int64
	ExtractorFailed     int64
	Corrupt             int64

	BroadcastSentUsers int64
	BroadcastSentChats int64
	BroadcastFailed    int64
}

func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Uptime:              time.Since(c.started),
		Requests:            c.Requests.Load(),
		CacheHits:           c.CacheHits.Load(),
		APIRequests:         c.APIRequests.Load(),
		APIDownloaded:       c.APIDownloaded.Load(),
		APIFailed:           c.APIFailed.Load(),
		LinkExtractFailed:   c.LinkExtractFailed.Load(),
		MirrorHits:          c.MirrorHits.Load(),
		ExtractorRequests:   c.ExtractorRequests.Load(),
		ExtractorDownloaded: c.ExtractorDownloaded.Load(),
		ExtractorFailed:     c.ExtractorFailed.Load(),
		Corrupt:             c.Corrupt.Load(),
		BroadcastSentUsers:  c.BroadcastSentUsers.Load(),
		BroadcastSentChats:  c.BroadcastSentChats.Load(),
		BroadcastFailed:     c.BroadcastFailed.Load(),
	}
}
