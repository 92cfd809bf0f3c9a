package chat

// DefaultWindow is the default number of retained turns per user.
const DefaultWindow = 10

// Window is a bounded sliding-window conversation buffer.
// Appending beyond the window size evicts the oldest turn.
// Not safe for concurrent use; the engine serializes access per user.
type Window struct {
	size  int
	turns []Turn
}

// NewWindow creates a buffer bounded to the last size turns.
// size <= 0 falls back to DefaultWindow.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{size: size}
}

// Append records a completed exchange, evicting the oldest turn when full.
func (w *Window) Append(human, ai string) {
	w.turns = append(w.turns, Turn{Human: human, AI: ai})
	if len(w.turns) > w.size {
		w.turns = w.turns[len(w.turns)-w.size:]
	}
}

// Turns returns the retained turns, oldest first.
// The returned slice is a copy.
func (w *Window) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len returns the number of retained turns.
func (w *Window) Len() int { return len(w.turns) }

// Size returns the window bound.
func (w *Window) Size() int { return w.size }
