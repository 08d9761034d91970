package genai

import (
	"github.com/storyflow-ai/storyflow/types"
)

// ImageRequest is a scene image generation request.
type ImageRequest struct {
	Prompt     string                 `json:"prompt"`
	Params     types.GenerationParams `json:"params"`
	Characters []*types.Character     `json:"characters,omitempty"`
	Model      string                 `json:"model,omitempty"`
}

// ImageResult is a generated image.
type ImageResult struct {
	Image         []byte `json:"image"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// EditRequest is a masked/painted image edit request.
type EditRequest struct {
	Image          []byte `json:"image"`
	Prompt         string `json:"prompt"`
	MaskOverlay    []byte `json:"mask_overlay,omitempty"`
	ReferenceImage []byte `json:"reference_image,omitempty"`
}

// VideoRequest is a clip generation request. A non-empty Continuation ties
// the new clip to the prior one for visual/temporal continuity.
type VideoRequest struct {
	SceneImage     []byte                 `json:"scene_image"`
	Script         string                 `json:"script,omitempty"`
	Params         types.GenerationParams `json:"params"`
	Model          string                 `json:"model,omitempty"`
	Resolution     string                 `json:"resolution,omitempty"`
	CameraMovement string                 `json:"camera_movement,omitempty"`
	Continuation   string                 `json:"continuation,omitempty"`

	// OnProgress receives human-readable progress messages while the
	// service renders. May be nil.
	OnProgress func(message string) `json:"-"`
}

// VideoResult is a generated clip. Continuation may be empty, in which case
// the clip cannot be extended.
type VideoResult struct {
	VideoRef     string `json:"video_ref"`
	AudioRef     string `json:"audio_ref,omitempty"`
	Continuation string `json:"continuation,omitempty"`
}

// AngleRequest asks for alternate camera angles of an existing scene.
type AngleRequest struct {
	Scene        *types.Scene           `json:"scene"`
	Angles       []string               `json:"angles"`
	FocusSubject string                 `json:"focus_subject,omitempty"`
	Params       types.GenerationParams `json:"params"`
}

// AngleResult is one derived angle scene.
type AngleResult struct {
	Angle string `json:"angle"`
	Image []byte `json:"image"`
}

// SpeechRequest is a narration synthesis request.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SpeechResult is synthesized narration audio.
type SpeechResult struct {
	AudioRef string `json:"audio_ref"`
}

// Description is the analysis result for a character reference image.
type Description struct {
	Text          string `json:"text"`
	DetectedStyle string `json:"detected_style,omitempty"`
}
