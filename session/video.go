package session

import (
	"github.com/storyflow-ai/storyflow/types"
)

// Video clip chain operations. Clips form an append-only list with pop-last;
// every clip after the first is causally tied to its predecessor through the
// continuation handle returned by the generation service.

// AppendClip appends a clip to the scene's chain and auto-selects it.
func (s *Store) AppendClip(ref types.SceneRef, clip types.VideoClip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil {
		return types.NewError(types.ErrSceneNotFound, "no video state at target")
	}
	vs.Clips = append(vs.Clips, clip)
	vs.CurrentClip = len(vs.Clips) - 1
	vs.Status = types.VideoSuccess
	vs.LastError = ""
	vs.Progress = ""
	return nil
}

// LastContinuation returns the continuation handle required to extend the
// scene's clip chain. It fails with ExtensionUnavailable, before any service
// round-trip, when the chain is empty or the last clip carries no handle.
func (s *Store) LastContinuation(ref types.SceneRef) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.videoAt(ref)
	if vs == nil {
		return "", types.NewError(types.ErrSceneNotFound, "no video state at target")
	}
	if len(vs.Clips) == 0 {
		return "", types.NewError(types.ErrExtensionUnavailable, "no clip to extend")
	}
	last := vs.Clips[len(vs.Clips)-1]
	if last.Continuation == "" {
		return "", types.NewError(types.ErrExtensionUnavailable, "last clip cannot be extended")
	}
	return last.Continuation, nil
}

// RemoveLastClip pops the tail of the chain and clamps the current-clip
// pointer into range. An emptied chain resets the pointer and returns the
// video state to idle.
func (s *Store) RemoveLastClip(ref types.SceneRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil {
		return types.NewError(types.ErrSceneNotFound, "no video state at target")
	}
	if len(vs.Clips) == 0 {
		return types.NewError(types.ErrInvalidRequest, "no clip to remove")
	}

	vs.Clips = vs.Clips[:len(vs.Clips)-1]
	if len(vs.Clips) == 0 {
		vs.CurrentClip = types.NoClip
		vs.Status = types.VideoIdle
		return nil
	}
	if vs.CurrentClip > len(vs.Clips)-1 {
		vs.CurrentClip = len(vs.Clips) - 1
	}
	return nil
}

// SelectClip moves the current-clip pointer, clamped into range.
func (s *Store) SelectClip(ref types.SceneRef, index int) error {
	return s.moveClipPointer(ref, func(_, n int) int { return clamp(index, 0, n-1) })
}

// NextClip advances the pointer by one, clamping at the last clip.
func (s *Store) NextClip(ref types.SceneRef) error {
	return s.moveClipPointer(ref, func(cur, n int) int { return clamp(cur+1, 0, n-1) })
}

// PrevClip moves the pointer back by one, clamping at the first clip.
func (s *Store) PrevClip(ref types.SceneRef) error {
	return s.moveClipPointer(ref, func(cur, n int) int { return clamp(cur-1, 0, n-1) })
}

func (s *Store) moveClipPointer(ref types.SceneRef, move func(cur, n int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil {
		return types.NewError(types.ErrSceneNotFound, "no video state at target")
	}
	if len(vs.Clips) == 0 {
		vs.CurrentClip = types.NoClip
		return nil
	}
	vs.CurrentClip = move(vs.CurrentClip, len(vs.Clips))
	return nil
}

// BeginVideo transitions the video state to loading with a progress message.
func (s *Store) BeginVideo(ref types.SceneRef, progress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil {
		return types.NewError(types.ErrSceneNotFound, "no video state at target")
	}
	vs.Status = types.VideoLoading
	vs.Progress = progress
	vs.LastError = ""
	return nil
}

// SetVideoProgress updates the loading-progress message. No-op unless the
// video state is still loading, so a late progress callback never clobbers
// a terminal state.
func (s *Store) SetVideoProgress(ref types.SceneRef, progress string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil || vs.Status != types.VideoLoading {
		return
	}
	vs.Progress = progress
}

// FailVideo records a failure on the video state. The existing clip chain is
// left untouched: a failed extension never mutates prior clips.
func (s *Store) FailVideo(ref types.SceneRef, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil {
		return types.NewError(types.ErrSceneNotFound, "no video state at target")
	}
	vs.Status = types.VideoError
	vs.LastError = message
	vs.Progress = ""
	return nil
}

// AbandonVideo releases a loading video state whose render was superseded
// while in flight. No-op unless the state is still loading, so a finished
// render is never overwritten.
func (s *Store) AbandonVideo(ref types.SceneRef, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil || vs.Status != types.VideoLoading {
		return
	}
	vs.Status = types.VideoError
	vs.LastError = message
	vs.Progress = ""
}

// SetNarration replaces the narration script for the scene.
func (s *Store) SetNarration(ref types.SceneRef, narration string) error {
	return s.updateVideo(ref, func(vs *types.VideoState) { vs.Narration = narration })
}

// SetVoiceoverMode switches between synthesized and uploaded-audio voiceover.
func (s *Store) SetVoiceoverMode(ref types.SceneRef, mode types.VoiceoverMode) error {
	return s.updateVideo(ref, func(vs *types.VideoState) { vs.VoiceoverMode = mode })
}

// SetCameraMovement selects the camera movement for the next clip.
func (s *Store) SetCameraMovement(ref types.SceneRef, movement string) error {
	return s.updateVideo(ref, func(vs *types.VideoState) { vs.CameraMovement = movement })
}

func (s *Store) updateVideo(ref types.SceneRef, apply func(*types.VideoState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.videoAt(ref)
	if vs == nil {
		return types.NewError(types.ErrSceneNotFound, "no video state at target")
	}
	apply(vs)
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
