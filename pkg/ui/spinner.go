package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	dotFrames  = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	lineFrames = []string{"-", "\\", "|", "/"}
)

// Spinner animates a one-line status message while a long operation runs.
// On non-terminal writers it prints the message once and stays silent.
type Spinner struct {
	w        io.Writer
	msg      string
	frames   []string
	interval time.Duration
	animate  bool

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started time.Time
}

// NewSpinner returns a spinner writing to w.
func NewSpinner(w io.Writer, msg string) *Spinner {
	s := &Spinner{w: w, msg: msg, frames: lineFrames, interval: 100 * time.Millisecond, animate: IsTerminal(w)}
	if UnicodeTerminal() {
		s.frames, s.interval = dotFrames, 80*time.Millisecond
	}
	return s
}

// Start begins the animation. Calling Start twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.started = time.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	if !s.animate {
		fmt.Fprintln(s.w, s.msg)
		close(s.done)
		return
	}
	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for i := 0; ; i++ {
		elapsed := time.Since(s.started).Truncate(time.Second)
		fmt.Fprintf(s.w, "\r%s %s %s", SpinnerStyle.Render(s.frames[i%len(s.frames)]), s.msg, DividerStyle.Render(elapsed.String()))
		select {
		case <-stop:
			fmt.Fprint(s.w, "\r\033[K")
			return
		case <-t.C:
		}
	}
}

// Stop ends the animation and clears the line. It returns how long the
// spinner ran.
func (s *Spinner) Stop() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return 0
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return time.Since(s.started)
}
