package broadcast

import (
	"fmt"
	"time"
)

// Status returns a copy of the job's status, if it is still retained.
func (d *Dispatcher) Status(jobID string) (JobStatus, bool) {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	st, ok := d.status[jobID]
	if !ok || st == nil {
		return JobStatus{}, false
	}
	return *st, true
}

// Active returns the status of the running job.
func (d *Dispatcher) Active() (JobStatus, bool) {
	d.mu.Lock()
	a := d.active
	d.mu.Unlock()
	if a == nil {
		return JobStatus{}, false
	}
	return d.Status(a.id)
}

// Busy reports whether the job slot is taken.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Progress renders a one-line summary of st.
func (st JobStatus) Progress() string {
	done := st.Sent + st.Failed + st.Skipped
	took := st.DoneAt.Sub(st.StartedAt)
	if st.Running || st.DoneAt.IsZero() {
		took = time.Since(st.StartedAt)
	}
	return fmt.Sprintf("%s: %d/%d (sent %d, failed %d) batch %d/%d, %s",
		st.Name, done, st.Total, st.Sent, st.Failed, st.Batch, st.Batches, took.Truncate(time.Second))
}
