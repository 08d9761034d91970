package types

import (
	"time"

	"github.com/google/uuid"
)

// SceneStatus represents the lifecycle state of a scene's image.
type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneGenerating SceneStatus = "generating"
	SceneComplete   SceneStatus = "complete"
	SceneError      SceneStatus = "error"
)

// VideoStatus represents the lifecycle state of a scene's video authoring.
type VideoStatus string

const (
	VideoIdle    VideoStatus = "idle"
	VideoLoading VideoStatus = "loading"
	VideoSuccess VideoStatus = "success"
	VideoError   VideoStatus = "error"
)

// VoiceoverMode selects how a scene's narration audio is produced.
type VoiceoverMode string

const (
	VoiceoverSynthesized VoiceoverMode = "synthesized"
	VoiceoverUploaded    VoiceoverMode = "uploaded"
)

// DefaultCameraMovement is the camera selector applied to new and derived
// video states.
const DefaultCameraMovement = "auto"

// GenerationParams holds the per-session knobs forwarded to the generation
// service with every call.
type GenerationParams struct {
	AspectRatio  string   `json:"aspect_ratio,omitempty"`
	Style        string   `json:"style,omitempty"`
	Genre        string   `json:"genre,omitempty"`
	CharacterIDs []string `json:"character_ids,omitempty"`
	ImageModel   string   `json:"image_model,omitempty"`
	VideoModel   string   `json:"video_model,omitempty"`
	Resolution   string   `json:"resolution,omitempty"`
}

// VideoClip is one generated video segment. A clip with an empty Continuation
// handle cannot be extended.
type VideoClip struct {
	VideoRef     string `json:"video_ref"`
	AudioRef     string `json:"audio_ref,omitempty"`
	Continuation string `json:"continuation,omitempty"`
}

// NoClip is the CurrentClip value of a video state whose clip list is empty.
const NoClip = -1

// VideoState is the video authoring state paired one-to-one with a scene.
type VideoState struct {
	Status         VideoStatus   `json:"status"`
	Clips          []VideoClip   `json:"clips,omitempty"`
	CurrentClip    int           `json:"current_clip"`
	Narration      string        `json:"narration,omitempty"`
	VoiceoverMode  VoiceoverMode `json:"voiceover_mode"`
	CameraMovement string        `json:"camera_movement"`
	Progress       string        `json:"progress,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
}

// NewVideoState returns the default idle video state paired with a new scene.
func NewVideoState() *VideoState {
	return &VideoState{
		Status:         VideoIdle,
		CurrentClip:    NoClip,
		VoiceoverMode:  VoiceoverSynthesized,
		CameraMovement: DefaultCameraMovement,
	}
}

// Clone deep-copies the video state.
func (v *VideoState) Clone() *VideoState {
	if v == nil {
		return nil
	}
	out := *v
	if v.Clips != nil {
		out.Clips = make([]VideoClip, len(v.Clips))
		copy(out.Clips, v.Clips)
	}
	return &out
}

// Scene is one visual beat: a prompt, its generated image, and its status.
type Scene struct {
	ID     string      `json:"id"`
	Prompt string      `json:"prompt"`
	Image  []byte      `json:"image,omitempty"`
	Error  string      `json:"error,omitempty"`
	Status SceneStatus `json:"status"`
	Hidden bool        `json:"hidden,omitempty"`

	// DerivedFrom is the index of the parent scene within the same session
	// when this scene is a camera-angle derivative, nil otherwise.
	// Derivatives are the only scenes that are ever physically removed.
	DerivedFrom *int `json:"derived_from,omitempty"`
}

// Clone deep-copies the scene.
func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	out := *s
	if s.Image != nil {
		out.Image = make([]byte, len(s.Image))
		copy(out.Image, s.Image)
	}
	if s.DerivedFrom != nil {
		idx := *s.DerivedFrom
		out.DerivedFrom = &idx
	}
	return &out
}

// Session is one creative thread: an ordered list of scenes and the parallel,
// index-aligned list of their video states. After any store mutation
// completes, len(Scenes) == len(VideoStates) always holds.
type Session struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Params      GenerationParams `json:"params"`
	Closed      bool             `json:"closed,omitempty"`
	Scenes      []*Scene         `json:"scenes"`
	VideoStates []*VideoState    `json:"video_states"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Clone deep-copies the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Scenes = make([]*Scene, len(s.Scenes))
	for i, sc := range s.Scenes {
		out.Scenes[i] = sc.Clone()
	}
	out.VideoStates = make([]*VideoState, len(s.VideoStates))
	for i, vs := range s.VideoStates {
		out.VideoStates[i] = vs.Clone()
	}
	if s.Params.CharacterIDs != nil {
		out.Params.CharacterIDs = append([]string(nil), s.Params.CharacterIDs...)
	}
	return &out
}

// VisibleScenes returns the number of scenes not hidden by soft delete.
func (s *Session) VisibleScenes() int {
	n := 0
	for _, sc := range s.Scenes {
		if !sc.Hidden {
			n++
		}
	}
	return n
}

// SceneRef identifies the target of an in-flight generation command. It is
// captured at dispatch time so results are applied to the index reserved at
// request time, never through a stale array reference.
type SceneRef struct {
	SessionID  string `json:"session_id"`
	SceneIndex int    `json:"scene_index"`
}

// Snapshot is the immutable-per-update state surface exported to callers.
type Snapshot struct {
	Sessions        []*Session `json:"sessions"`
	ActiveSession   int        `json:"active_session"`
	CreditBalance   int64      `json:"credit_balance"`
	DisplayBalance  float64    `json:"display_balance"`
	DisplayCurrency string     `json:"display_currency"`
	DailyUsage      int64      `json:"daily_usage"`
	DailySpend      int64      `json:"daily_spend"`
	LastStatus      string     `json:"last_status,omitempty"`
}

// NewID returns a creation-ordered unique id. UUIDv7 ids sort by creation
// time, which the store relies on for oldest-first eviction.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
