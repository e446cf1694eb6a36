package history

import "github.com/testpulse/testpulse/record"

// window is a fixed-capacity ring buffer of run summaries, newest last.
type window struct {
	buf   []record.RunSummary
	head  int // index of the oldest entry
	size  int
	total uint64 // lifetime appends, monotonic across evictions
}

func newWindow(capacity int) *window {
	return &window{buf: make([]record.RunSummary, capacity)}
}

// append adds s, evicting the oldest entry when the ring is full.
func (w *window) append(s record.RunSummary) {
	tail := (w.head + w.size) % len(w.buf)
	w.buf[tail] = s
	if w.size < len(w.buf) {
		w.size++
	} else {
		w.head = (w.head + 1) % len(w.buf)
	}
	w.total++
}

// snapshot copies the window contents in oldest-to-newest order.
func (w *window) snapshot() []record.RunSummary {
	out := make([]record.RunSummary, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}
