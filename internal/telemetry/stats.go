package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// rate returns ok/total as a percentage, 0 when total is 0.
func rate(ok, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(ok) / float64(total) * 100
}

// Format renders the snapshot as the /dstats report.
func (s Snapshot) Format() string {
	var b strings.Builder
	b.WriteString("📊 Download stats\n")
	fmt.Fprintf(&b, "Uptime: %s\n", s.Uptime.Truncate(time.Second))
	fmt.Fprintf(&b, "Requests: %s (cache hits %s)\n", humanize.Comma(s.Requests), humanize.Comma(s.CacheHits))

	b.WriteString("\nAPI\n")
	fmt.Fprintf(&b, "  requests: %s\n", humanize.Comma(s.APIRequests))
	fmt.Fprintf(&b, "  downloaded: %s\n", humanize.Comma(s.APIDownloaded))
	fmt.Fprintf(&b, "  failed: %s\n", humanize.Comma(s.APIFailed))
	fmt.Fprintf(&b, "  link extract failed: %s\n", humanize.Comma(s.LinkExtractFailed))
	fmt.Fprintf(&b, "  mirror hits: %s\n", humanize.Comma(s.MirrorHits))
	fmt.Fprintf(&b, "  success rate: %.2f%%\n", rate(s.APIDownloaded, s.APIRequests))

	b.WriteString("\nExtractor\n")
	fmt.Fprintf(&b, "  requests: %s\n", humanize.Comma(s.ExtractorRequests))
	fmt.Fprintf(&b, "  downloaded: %s\n", humanize.Comma(s.ExtractorDownloaded))
	fmt.Fprintf(&b, "  failed: %s\n", humanize.Comma(s.ExtractorFailed))
	fmt.Fprintf(&b, "  success rate: %.2f%%\n", rate(s.ExtractorDownloaded, s.ExtractorRequests))

	if s.Corrupt > 0 {
		fmt.Fprintf(&b, "\nDiscarded corrupt files: %s\n", humanize.Comma(s.Corrupt))
	}

	b.WriteString("\nBroadcast\n")
	fmt.Fprintf(&b, "  users: %s\n", humanize.Comma(s.BroadcastSentUsers))
	fmt.Fprintf(&b, "  chats: %s\n", humanize.Comma(s.BroadcastSentChats))
	fmt.Fprintf(&b, "  failed: %s", humanize.Comma(s.BroadcastFailed))
	return b.String()
}
