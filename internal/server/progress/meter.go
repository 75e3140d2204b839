package progress

import "time"

// Rate derives throughput in bytes per second and the remaining time from
// bytes done out of total over elapsed. Unknown totals or a zero rate give a
// zero ETA.
func Rate(done, total int64, elapsed time.Duration) (bytesPerSecond float64, eta time.Duration) {
	if elapsed <= 0 || done <= 0 {
		return 0, 0
	}
	bytesPerSecond = float64(done) / elapsed.Seconds()
	if total > done && bytesPerSecond > 0 {
		eta = time.Duration(float64(total-done) / bytesPerSecond * float64(time.Second))
	}
	return bytesPerSecond, eta
}

// Meter tracks a single byte stream from a start time.
type Meter struct {
	start time.Time
	total int64
	now   func() time.Time
}

func NewMeter(total int64) *Meter {
	return &Meter{start: time.Now(), total: total, now: time.Now}
}

// Observe fills the byte fields of a progress update.
func (m *Meter) Observe(done int64) (bytesPerSecond float64, eta time.Duration) {
	return Rate(done, m.total, m.now().Sub(m.start))
}
