package hostwatch

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// debouncer collects file events and emits them compressed when the window
// expires or the buffer fills.
type debouncer struct {
	window    time.Duration
	maxBuffer int
	events    []fsnotify.Event
	timer     *time.Timer
	timerCh   <-chan time.Time
	flushFn   func([]fsnotify.Event)
}

func newDebouncer(window time.Duration, maxBuffer int, flushFn func([]fsnotify.Event)) *debouncer {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	if maxBuffer <= 0 {
		maxBuffer = 1000
	}
	return &debouncer{
		window:    window,
		maxBuffer: maxBuffer,
		events:    make([]fsnotify.Event, 0, 16),
		flushFn:   flushFn,
	}
}

// add buffers an event. It reports whether the full buffer was flushed.
func (d *debouncer) add(ev fsnotify.Event) bool {
	d.events = append(d.events, ev)

	if len(d.events) >= d.maxBuffer {
		d.flush()
		return true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
	return false
}

// timerC fires when the window expires. It is nil while nothing is
// buffered.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.events) == 0 {
		return
	}
	batch := compress(d.events)
	d.events = d.events[:0]
	d.flushFn(batch)
}

// compress keeps one event per path, in first-seen order, with the union of
// the operations seen for it.
func compress(events []fsnotify.Event) []fsnotify.Event {
	if len(events) <= 1 {
		return events
	}

	index := make(map[string]int, len(events))
	result := make([]fsnotify.Event, 0, len(events))
	for _, ev := range events {
		if i, ok := index[ev.Name]; ok {
			result[i].Op |= ev.Op
			continue
		}
		index[ev.Name] = len(result)
		result = append(result, ev)
	}
	return result
}
