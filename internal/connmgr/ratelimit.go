package connmgr

import "time"

// slidingWindow admits at most limit events per trailing window. Timestamps
// of admitted events are kept in a deque and pruned on each call. Not safe
// for concurrent use; the manager calls it under its own lock.
type slidingWindow struct {
	limit  int
	window time.Duration
	stamps []time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{limit: limit, window: window}
}

// allow reports whether one more event fits in the window ending at now, and
// records it if so.
func (w *slidingWindow) allow(now time.Time) bool {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}

	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}
