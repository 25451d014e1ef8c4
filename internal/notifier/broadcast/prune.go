package broadcast

import (
	"sort"
	"time"
)

const (
	// Keep finished job statuses bounded.
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
)

func (d *Dispatcher) pruneStatus(now time.Time) {
	d.mu.Lock()
	maxEntries := d.cfg.StatusMax
	ttl := d.cfg.StatusTTL
	d.mu.Unlock()

	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	if len(d.status) == 0 {
		return
	}

	// 1) Drop finished jobs older than TTL.
	for id, st := range d.status {
		if st == nil {
			delete(d.status, id)
			continue
		}
		if st.Running || st.DoneAt.IsZero() {
			continue
		}
		if now.Sub(st.DoneAt) > ttl {
			delete(d.status, id)
		}
	}

	if len(d.status) <= maxEntries {
		return
	}

	// 2) Still too big: drop the oldest finished jobs.
	type kv struct {
		id string
		t  time.Time
	}
	items := make([]kv, 0, len(d.status))
	for id, st := range d.status {
		if st.Running || st.DoneAt.IsZero() {
			continue
		}
		items = append(items, kv{id: id, t: st.DoneAt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].t.Before(items[j].t) })

	excess := len(d.status) - maxEntries
	for i := 0; i < excess && i < len(items); i++ {
		delete(d.status, items[i].id)
	}
}
