package genai

import "context"

// ImageGenerator synthesizes and edits scene images.
type ImageGenerator interface {
	Generate(ctx context.Context, req *ImageRequest) (*ImageResult, error)
	Edit(ctx context.Context, req *EditRequest) (*ImageResult, error)
}

// VideoGenerator synthesizes clips, optionally continuing a prior clip via
// its continuation handle.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req *VideoRequest) (*VideoResult, error)
}

// AngleGenerator produces alternate camera angles of an existing scene.
type AngleGenerator interface {
	GenerateAngles(ctx context.Context, req *AngleRequest) ([]AngleResult, error)
}

// SpeechSynthesizer converts narration text to audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResult, error)
}

// Transcriber converts uploaded audio to narration text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// CharacterDescriber analyzes a character reference image.
type CharacterDescriber interface {
	Describe(ctx context.Context, image []byte) (*Description, error)
}

// Service aggregates every generation capability the module consumes.
type Service interface {
	ImageGenerator
	VideoGenerator
	AngleGenerator
	SpeechSynthesizer
	Transcriber
	CharacterDescriber
}
