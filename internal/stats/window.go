package stats

import "time"

// DefaultWindowSeconds is the trailing window used for current throughput.
const DefaultWindowSeconds = 10

// window is a ring buffer of per-second request counts. It is not
// synchronized; the Aggregator guards it.
type window struct {
	counts []int64
	stamps []int64 // unix second each slot currently counts
	origin int64   // unix second the run started
}

func newWindow(seconds int) *window {
	return &window{
		counts: make([]int64, seconds),
		stamps: make([]int64, seconds),
	}
}

func (w *window) reset(start time.Time) {
	w.origin = start.Unix()
	for i := range w.counts {
		w.counts[i] = 0
		w.stamps[i] = -1
	}
}

func (w *window) slot(sec int64) int {
	n := int64(len(w.counts))
	return int(((sec % n) + n) % n)
}

func (w *window) add(now time.Time) {
	sec := now.Unix()
	i := w.slot(sec)
	if w.stamps[i] != sec {
		w.stamps[i] = sec
		w.counts[i] = 0
	}
	w.counts[i]++
}

// rate averages the completed seconds inside the window ending before now.
// The second in progress is excluded so a partial second does not drag the
// figure down.
func (w *window) rate(now time.Time) float64 {
	cur := now.Unix()
	span := int64(len(w.counts))
	if elapsed := cur - w.origin; elapsed < span {
		span = elapsed
	}
	if span <= 0 {
		return 0
	}
	var sum int64
	for sec := cur - span; sec < cur; sec++ {
		i := w.slot(sec)
		if w.stamps[i] == sec {
			sum += w.counts[i]
		}
	}
	return float64(sum) / float64(span)
}
