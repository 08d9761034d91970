// Package edit implements the per-edit-session undo/redo history for masked
// image editing. Each active edit owns its own stack of image states with
// text-editor semantics: applying a new edit after an undo discards the
// redo tail.
package edit

import (
	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/types"
)

// History is an ordered sequence of image states plus a pointer to the
// current one. Index 0 is always the pre-edit image the session opened with.
type History struct {
	states  [][]byte
	current int
}

// NewHistory seeds a history with the initial image state.
func NewHistory(initial []byte) *History {
	return &History{states: [][]byte{initial}}
}

// Apply truncates any redo tail beyond the current state and appends the new
// state, moving the pointer to the new tail.
func (h *History) Apply(state []byte) {
	h.states = append(h.states[:h.current+1], state)
	h.current = len(h.states) - 1
}

// Undo moves the pointer back by one. No-op at the first state.
func (h *History) Undo() []byte {
	if h.current > 0 {
		h.current--
	}
	return h.states[h.current]
}

// Redo moves the pointer forward by one. No-op at the last state.
func (h *History) Redo() []byte {
	if h.current < len(h.states)-1 {
		h.current++
	}
	return h.states[h.current]
}

// Current returns the image state at the pointer.
func (h *History) Current() []byte {
	return h.states[h.current]
}

// CanUndo reports whether Undo would move the pointer.
func (h *History) CanUndo() bool { return h.current > 0 }

// CanRedo reports whether Redo would move the pointer.
func (h *History) CanRedo() bool { return h.current < len(h.states)-1 }

// Len returns the number of recorded states.
func (h *History) Len() int { return len(h.states) }

// Session is one in-progress edit of a single scene's image. It records the
// target scene by reference so the result is committed through the store's
// current state, never through a captured array element.
type Session struct {
	Ref     types.SceneRef
	history *History
	logger  *zap.Logger
}

// NewSession opens an edit session over the scene's pre-edit image.
func NewSession(ref types.SceneRef, original []byte, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		Ref:     ref,
		history: NewHistory(original),
		logger: logger.With(
			zap.String("component", "edit_session"),
			zap.String("session_id", ref.SessionID),
			zap.Int("scene_index", ref.SceneIndex),
		),
	}
}

// Apply records a new edited image state.
func (s *Session) Apply(state []byte) {
	s.history.Apply(state)
}

// Undo steps back one edit and returns the image to display.
func (s *Session) Undo() []byte { return s.history.Undo() }

// Redo steps forward one edit and returns the image to display.
func (s *Session) Redo() []byte { return s.history.Redo() }

// Current returns the image at the history pointer.
func (s *Session) Current() []byte { return s.history.Current() }

// CanUndo reports whether an undo step is available.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether a redo step is available.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// Save closes the session and returns the image state at the current pointer
// for committing back into the owning scene. Valid with zero edits applied.
func (s *Session) Save() []byte {
	s.logger.Info("edit session saved", zap.Int("states", s.history.Len()))
	return s.history.Current()
}

// Cancel closes the session and returns the pre-edit image, discarding every
// change. Valid with zero edits applied.
func (s *Session) Cancel() []byte {
	s.logger.Info("edit session cancelled", zap.Int("states", s.history.Len()))
	return s.history.states[0]
}
