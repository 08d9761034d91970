package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/types"
)

// NoActive is the active-session index when no session is selected.
const NoActive = -1

// Store is the aggregate root for all generation sessions. All fields are
// guarded by mu; exported methods never hand out interior pointers.
type Store struct {
	mu       sync.RWMutex
	sessions []*types.Session
	active   int
	status   string
	logger   *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		active: NoActive,
		logger: logger.With(zap.String("component", "session_store")),
	}
}

// Replace installs previously persisted sessions, e.g. at startup. An
// out-of-range active pointer degrades to no active session rather than
// guessing at one.
func (s *Store) Replace(sessions []*types.Session, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make([]*types.Session, len(sessions))
	for i, sess := range sessions {
		s.sessions[i] = sess.Clone()
	}
	if active < 0 || active >= len(s.sessions) {
		active = NoActive
	}
	s.active = active
}

// CreateSession appends a session with one pending placeholder scene per
// prompt, each paired with a default idle video state, and makes it the
// active session.
func (s *Store) CreateSession(title string, params types.GenerationParams, prompts []string) (string, error) {
	if len(prompts) == 0 {
		return "", types.NewError(types.ErrInvalidRequest, "a session needs at least one scene prompt")
	}

	sess := &types.Session{
		ID:        types.NewID(),
		Title:     title,
		Params:    params,
		CreatedAt: time.Now(),
	}
	for _, prompt := range prompts {
		sess.Scenes = append(sess.Scenes, &types.Scene{
			ID:     types.NewID(),
			Prompt: prompt,
			Status: types.ScenePending,
		})
		sess.VideoStates = append(sess.VideoStates, types.NewVideoState())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sess)
	s.active = len(s.sessions) - 1
	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.Int("scenes", len(sess.Scenes)))
	return sess.ID, nil
}

// BeginSceneGeneration transitions the scene to generating and clears any
// prior error. Missing sessions or scenes are a no-op so a result arriving
// after deletion never crashes the caller loop.
func (s *Store) BeginSceneGeneration(ref types.SceneRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := s.sceneAt(ref)
	if sc == nil {
		return
	}
	sc.Status = types.SceneGenerating
	sc.Error = ""
}

// CompleteSceneGeneration records a successful image at the index reserved
// when the request was dispatched. No-op if the session was removed while
// the call was in flight.
func (s *Store) CompleteSceneGeneration(ref types.SceneRef, image []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := s.sceneAt(ref)
	if sc == nil {
		return
	}
	sc.Image = image
	sc.Error = ""
	sc.Status = types.SceneComplete
}

// FailSceneGeneration records a failure message on the scene. The rest of
// the session stays usable.
func (s *Store) FailSceneGeneration(ref types.SceneRef, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := s.sceneAt(ref)
	if sc == nil {
		return
	}
	sc.Error = message
	sc.Status = types.SceneError
}

// AbandonSceneGeneration releases a reserved placeholder whose operation was
// superseded while in flight. No-op unless the scene is still generating, so
// a result that already landed is never overwritten.
func (s *Store) AbandonSceneGeneration(ref types.SceneRef, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := s.sceneAt(ref)
	if sc == nil || sc.Status != types.SceneGenerating {
		return
	}
	sc.Error = message
	sc.Status = types.SceneError
}

// SetSceneImage commits an image to the scene addressed by its stable id,
// wherever splices and reorders have moved it. Used by the edit commit path.
func (s *Store) SetSceneImage(sessionID, sceneID string, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(sessionID)
	if sess == nil {
		return types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
	}
	for _, sc := range sess.Scenes {
		if sc.ID == sceneID {
			sc.Image = image
			sc.Error = ""
			sc.Status = types.SceneComplete
			return nil
		}
	}
	return types.NewError(types.ErrSceneNotFound, "scene removed during edit")
}

// InsertDerivedScenes splices camera-angle derivatives immediately after
// afterIndex. Each derived video state inherits the parent's narration,
// voiceover mode, and status-neutral defaults, but camera movement resets.
// It returns the number of scenes inserted so callers can shift any external
// pointers at or beyond afterIndex+1 by that amount (see ShiftIndex).
func (s *Store) InsertDerivedScenes(sessionID string, afterIndex int, derived []*types.Scene) (int, error) {
	if len(derived) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(sessionID)
	if sess == nil {
		return 0, types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
	}
	if afterIndex < 0 || afterIndex >= len(sess.Scenes) {
		return 0, types.NewError(types.ErrSceneNotFound, "no scene at splice index")
	}

	parentVideo := sess.VideoStates[afterIndex]
	parent := afterIndex

	newScenes := make([]*types.Scene, 0, len(derived))
	newStates := make([]*types.VideoState, 0, len(derived))
	for _, d := range derived {
		sc := d.Clone()
		if sc.ID == "" {
			sc.ID = types.NewID()
		}
		idx := parent
		sc.DerivedFrom = &idx
		newScenes = append(newScenes, sc)

		vs := types.NewVideoState()
		vs.Narration = parentVideo.Narration
		vs.VoiceoverMode = parentVideo.VoiceoverMode
		newStates = append(newStates, vs)
	}

	at := afterIndex + 1
	sess.Scenes = append(sess.Scenes[:at], append(newScenes, sess.Scenes[at:]...)...)
	sess.VideoStates = append(sess.VideoStates[:at], append(newStates, sess.VideoStates[at:]...)...)

	s.logger.Info("derived scenes inserted",
		zap.String("session_id", sessionID),
		zap.Int("after_index", afterIndex),
		zap.Int("count", len(derived)))
	return len(derived), nil
}

// ShiftIndex recomputes an externally-tracked pointer after a splice of n
// items following afterIndex. Pointers at or beyond the splice point move
// by n; earlier pointers are unchanged.
func ShiftIndex(ptr, afterIndex, n int) int {
	if ptr > afterIndex {
		return ptr + n
	}
	return ptr
}

// RemoveScene hides the scene (soft delete). When derivativeOnly is set it
// instead physically splices the scene out, and only if the scene is a
// camera-angle derivative. A session whose visible scenes drop to zero is
// auto-closed.
func (s *Store) RemoveScene(sessionID string, sceneIndex int, derivativeOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(sessionID)
	if sess == nil {
		return types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
	}
	if sceneIndex < 0 || sceneIndex >= len(sess.Scenes) {
		return types.NewError(types.ErrSceneNotFound, "no scene at index")
	}

	if derivativeOnly {
		if sess.Scenes[sceneIndex].DerivedFrom == nil {
			return types.NewError(types.ErrInvalidRequest, "scene is not a camera-angle derivative")
		}
		sess.Scenes = append(sess.Scenes[:sceneIndex], sess.Scenes[sceneIndex+1:]...)
		sess.VideoStates = append(sess.VideoStates[:sceneIndex], sess.VideoStates[sceneIndex+1:]...)
	} else {
		sess.Scenes[sceneIndex].Hidden = true
	}

	if sess.VisibleScenes() == 0 {
		sess.Closed = true
		s.logger.Info("session auto-closed, no visible scenes", zap.String("session_id", sessionID))
	}
	return nil
}

// ReorderScenes moves the scene at from to position to, mirroring the move
// on the video-state list so the parallel lists stay aligned.
func (s *Store) ReorderScenes(sessionID string, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(sessionID)
	if sess == nil {
		return types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
	}
	n := len(sess.Scenes)
	if from < 0 || from >= n || to < 0 || to >= n {
		return types.NewError(types.ErrSceneNotFound, "reorder index out of range")
	}
	if from == to {
		return nil
	}

	sc := sess.Scenes[from]
	sess.Scenes = append(sess.Scenes[:from], sess.Scenes[from+1:]...)
	sess.Scenes = append(sess.Scenes[:to], append([]*types.Scene{sc}, sess.Scenes[to:]...)...)

	vs := sess.VideoStates[from]
	sess.VideoStates = append(sess.VideoStates[:from], sess.VideoStates[from+1:]...)
	sess.VideoStates = append(sess.VideoStates[:to], append([]*types.VideoState{vs}, sess.VideoStates[to:]...)...)
	return nil
}

// CloseSession marks the session closed. No data is reset; ReopenSession
// restores the exact prior state.
func (s *Store) CloseSession(sessionID string) error {
	return s.setClosed(sessionID, true)
}

// ReopenSession clears the closed flag.
func (s *Store) ReopenSession(sessionID string) error {
	return s.setClosed(sessionID, false)
}

func (s *Store) setClosed(sessionID string, closed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(sessionID)
	if sess == nil {
		return types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
	}
	sess.Closed = closed
	return nil
}

// DeleteSession permanently removes a session. This is the only operation
// that destroys session data.
func (s *Store) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == sessionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
	}

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	switch {
	case s.active == idx:
		s.active = NoActive
		if len(s.sessions) > 0 {
			s.active = len(s.sessions) - 1
		}
	case s.active > idx:
		s.active--
	}
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// SetActive selects the active session by id.
func (s *Store) SetActive(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sess := range s.sessions {
		if sess.ID == sessionID {
			s.active = i
			return nil
		}
	}
	return types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
}

// ActiveSession returns a deep copy of the active session, or nil.
func (s *Store) ActiveSession() *types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == NoActive || s.active >= len(s.sessions) {
		return nil
	}
	return s.sessions[s.active].Clone()
}

// Session returns a deep copy of the session with the given id.
func (s *Store) Session(sessionID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess := s.find(sessionID); sess != nil {
		return sess.Clone(), nil
	}
	return nil, types.NewError(types.ErrSessionNotFound, "session "+sessionID+" not found")
}

// Sessions returns a deep copy of all sessions in creation order.
func (s *Store) Sessions() []*types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Snapshot returns the store's observable surface as one consistent copy.
func (s *Store) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := types.Snapshot{
		ActiveSession: s.active,
		LastStatus:    s.status,
		Sessions:      make([]*types.Session, len(s.sessions)),
	}
	for i, sess := range s.sessions {
		snap.Sessions[i] = sess.Clone()
	}
	return snap
}

// SetStatus records the last user-visible status message.
func (s *Store) SetStatus(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = message
}

// MarkInFlightStopped transitions every scene currently generating and every
// video state currently loading to an error state with the canonical stop
// message, and returns how many were stopped. The generation service is not
// contacted; the cancellation controller runs this on Stop.
func (s *Store) MarkInFlightStopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := 0
	for _, sess := range s.sessions {
		for _, sc := range sess.Scenes {
			if sc.Status == types.SceneGenerating {
				sc.Status = types.SceneError
				sc.Error = types.StoppedMessage
				stopped++
			}
		}
		for _, vs := range sess.VideoStates {
			if vs.Status == types.VideoLoading {
				vs.Status = types.VideoError
				vs.LastError = types.StoppedMessage
				vs.Progress = ""
				stopped++
			}
		}
	}
	if stopped > 0 {
		s.logger.Info("in-flight operations stopped", zap.Int("count", stopped))
	}
	return stopped
}

// find returns the live session with the given id. Callers must hold mu.
func (s *Store) find(sessionID string) *types.Session {
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			return sess
		}
	}
	return nil
}

// sceneAt returns the live scene addressed by ref. Callers must hold mu.
func (s *Store) sceneAt(ref types.SceneRef) *types.Scene {
	sess := s.find(ref.SessionID)
	if sess == nil {
		return nil
	}
	if ref.SceneIndex < 0 || ref.SceneIndex >= len(sess.Scenes) {
		return nil
	}
	return sess.Scenes[ref.SceneIndex]
}

// videoAt returns the live video state addressed by ref. Callers must hold mu.
func (s *Store) videoAt(ref types.SceneRef) *types.VideoState {
	sess := s.find(ref.SessionID)
	if sess == nil {
		return nil
	}
	if ref.SceneIndex < 0 || ref.SceneIndex >= len(sess.VideoStates) {
		return nil
	}
	return sess.VideoStates[ref.SceneIndex]
}
