package indicator

import "sync"

// Recorder is Signaler stub for tests, remembers every pattern requested.
type Recorder struct {
	mu     sync.Mutex
	States []State
}

func (r *Recorder) Searching() { r.add(StateSearching) }
func (r *Recorder) Settled()   { r.add(StateSettled) }
func (r *Recorder) Pulse()     { r.add(StateFaultPulse) }
func (r *Recorder) Terminal()  { r.add(StateTerminal) }

func (r *Recorder) Count(s State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.States {
		if x == s {
			n++
		}
	}
	return n
}

func (r *Recorder) add(s State) {
	r.mu.Lock()
	r.States = append(r.States, s)
	r.mu.Unlock()
}

// LineRecorder is Line stub for tests, remembers output levels.
type LineRecorder struct {
	Levels []bool
	Err    error
}

func (l *LineRecorder) Set(on bool) error {
	l.Levels = append(l.Levels, on)
	return l.Err
}
