// Package mocks provides configurable fakes for the external generation
// service boundary, with per-method override hooks, error injection, and
// call counting.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/storyflow-ai/storyflow/genai"
)

// GenService is a mock genai.Service. Every method returns a canned success
// unless the corresponding *Func hook is set. Hooks run outside the mock's
// lock, so a hook may call back into the system under test (e.g. trigger a
// stop while a request is "in flight").
type GenService struct {
	mu    sync.Mutex
	calls map[string]int

	GenerateFunc   func(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error)
	EditFunc       func(ctx context.Context, req *genai.EditRequest) (*genai.ImageResult, error)
	VideoFunc      func(ctx context.Context, req *genai.VideoRequest) (*genai.VideoResult, error)
	AnglesFunc     func(ctx context.Context, req *genai.AngleRequest) ([]genai.AngleResult, error)
	SynthesizeFunc func(ctx context.Context, req *genai.SpeechRequest) (*genai.SpeechResult, error)
	TranscribeFunc func(ctx context.Context, audio []byte, mimeType string) (string, error)
	DescribeFunc   func(ctx context.Context, image []byte) (*genai.Description, error)
}

// NewGenService creates a mock with canned-success defaults.
func NewGenService() *GenService {
	return &GenService{calls: make(map[string]int)}
}

// Calls returns how many times the named method was invoked.
func (m *GenService) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *GenService) record(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.calls[method]
}

// Generate implements genai.ImageGenerator.
func (m *GenService) Generate(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error) {
	n := m.record("Generate")
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &genai.ImageResult{Image: []byte(fmt.Sprintf("image-%d", n))}, nil
}

// Edit implements genai.ImageGenerator.
func (m *GenService) Edit(ctx context.Context, req *genai.EditRequest) (*genai.ImageResult, error) {
	n := m.record("Edit")
	if m.EditFunc != nil {
		return m.EditFunc(ctx, req)
	}
	return &genai.ImageResult{Image: []byte(fmt.Sprintf("edited-%d", n))}, nil
}

// GenerateVideo implements genai.VideoGenerator.
func (m *GenService) GenerateVideo(ctx context.Context, req *genai.VideoRequest) (*genai.VideoResult, error) {
	n := m.record("GenerateVideo")
	if m.VideoFunc != nil {
		return m.VideoFunc(ctx, req)
	}
	return &genai.VideoResult{
		VideoRef:     fmt.Sprintf("video-%d", n),
		Continuation: fmt.Sprintf("handle-%d", n),
	}, nil
}

// GenerateAngles implements genai.AngleGenerator.
func (m *GenService) GenerateAngles(ctx context.Context, req *genai.AngleRequest) ([]genai.AngleResult, error) {
	m.record("GenerateAngles")
	if m.AnglesFunc != nil {
		return m.AnglesFunc(ctx, req)
	}
	out := make([]genai.AngleResult, len(req.Angles))
	for i, angle := range req.Angles {
		out[i] = genai.AngleResult{Angle: angle, Image: []byte("angle-" + angle)}
	}
	return out, nil
}

// Synthesize implements genai.SpeechSynthesizer.
func (m *GenService) Synthesize(ctx context.Context, req *genai.SpeechRequest) (*genai.SpeechResult, error) {
	n := m.record("Synthesize")
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return &genai.SpeechResult{AudioRef: fmt.Sprintf("audio-%d", n)}, nil
}

// Transcribe implements genai.Transcriber.
func (m *GenService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	m.record("Transcribe")
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, mimeType)
	}
	return "transcribed narration", nil
}

// Describe implements genai.CharacterDescriber.
func (m *GenService) Describe(ctx context.Context, image []byte) (*genai.Description, error) {
	m.record("Describe")
	if m.DescribeFunc != nil {
		return m.DescribeFunc(ctx, image)
	}
	return &genai.Description{Text: "a tall figure in a long coat", DetectedStyle: "noir"}, nil
}
