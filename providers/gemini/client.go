// Package gemini implements the generation service boundary against the
// Google Generative Language API: image synthesis and masked editing via
// generateContent, long-running video rendering via predictLongRunning with
// operation polling, speech synthesis, audio transcription, and character
// image analysis.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/genai"
)

// Config configures the Gemini client.
type Config struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// PollInterval paces the long-running video operation polls.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	ImageModel    string `yaml:"image_model" json:"image_model"`
	VideoModel    string `yaml:"video_model" json:"video_model"`
	SpeechModel   string `yaml:"speech_model" json:"speech_model"`
	AnalysisModel string `yaml:"analysis_model" json:"analysis_model"`
}

// DefaultConfig returns the production model names and endpoints.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://generativelanguage.googleapis.com",
		Timeout:       120 * time.Second,
		PollInterval:  5 * time.Second,
		ImageModel:    "imagen-4",
		VideoModel:    "veo-3",
		SpeechModel:   "gemini-2.5-flash-tts",
		AnalysisModel: "gemini-2.5-flash",
	}
}

// Client talks to the Generative Language API. It implements genai.Service.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ genai.Service = (*Client)(nil)

// New creates a Gemini client.
func New(cfg Config, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = def.ImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = def.VideoModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = def.SpeechModel
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = def.AnalysisModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", "gemini")),
	}
}

// Wire structures for generateContent.
type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	AspectRatio        string   `json:"aspectRatio,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

// Generate implements genai.ImageGenerator.
func (c *Client) Generate(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.ImageModel
	}

	parts := []part{{Text: buildImagePrompt(req)}}
	for _, ch := range req.Characters {
		if len(ch.Image) > 0 {
			parts = append(parts, imagePart(ch.Image))
		}
	}

	body := &generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			AspectRatio:        req.Params.AspectRatio,
		},
	}

	resp, err := c.generateContent(ctx, model, body)
	if err != nil {
		return nil, err
	}
	image, err := firstInlineImage(resp)
	if err != nil {
		return nil, err
	}
	return &genai.ImageResult{Image: image}, nil
}

// Edit implements genai.ImageGenerator. The source image, optional mask
// overlay, and optional reference image are passed as inline parts ahead of
// the instruction text.
func (c *Client) Edit(ctx context.Context, req *genai.EditRequest) (*genai.ImageResult, error) {
	parts := []part{imagePart(req.Image)}
	if len(req.MaskOverlay) > 0 {
		parts = append(parts, imagePart(req.MaskOverlay))
	}
	if len(req.ReferenceImage) > 0 {
		parts = append(parts, imagePart(req.ReferenceImage))
	}
	parts = append(parts, part{Text: req.Prompt})

	body := &generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}

	resp, err := c.generateContent(ctx, c.cfg.ImageModel, body)
	if err != nil {
		return nil, err
	}
	image, err := firstInlineImage(resp)
	if err != nil {
		return nil, err
	}
	return &genai.ImageResult{Image: image}, nil
}

// Video wire structures. Rendering is a long-running operation: the initial
// call returns an operation name which is polled until done.
type videoPredictRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParams     `json:"parameters"`
}

type videoInstance struct {
	Prompt string      `json:"prompt,omitempty"`
	Image  *inlineData `json:"image,omitempty"`

	// Video continues the referenced prior render when set.
	Video *videoRef `json:"video,omitempty"`
}

type videoRef struct {
	URI string `json:"uri"`
}

type videoParams struct {
	AspectRatio    string `json:"aspectRatio,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	CameraMovement string `json:"cameraMovement,omitempty"`
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata *struct {
		State string `json:"state,omitempty"`
	} `json:"metadata,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video videoRef `json:"video"`
				Audio videoRef `json:"audio"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// GenerateVideo implements genai.VideoGenerator. Progress messages from the
// polling loop are forwarded through req.OnProgress.
func (c *Client) GenerateVideo(ctx context.Context, req *genai.VideoRequest) (*genai.VideoResult, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.VideoModel
	}

	instance := videoInstance{Prompt: req.Script}
	if req.Continuation != "" {
		instance.Video = &videoRef{URI: req.Continuation}
	} else if len(req.SceneImage) > 0 {
		instance.Image = inlinePart(req.SceneImage)
	}

	body := &videoPredictRequest{
		Instances: []videoInstance{instance},
		Parameters: videoParams{
			AspectRatio:    req.Params.AspectRatio,
			Resolution:     req.Resolution,
			CameraMovement: req.CameraMovement,
		},
	}

	var op operation
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning", strings.TrimRight(c.cfg.BaseURL, "/"), model)
	if err := c.post(ctx, endpoint, body, &op); err != nil {
		return nil, err
	}

	progress := func(msg string) {
		if req.OnProgress != nil {
			req.OnProgress(msg)
		}
	}
	progress("Render queued")

	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
		pollURL := fmt.Sprintf("%s/v1beta/%s", strings.TrimRight(c.cfg.BaseURL, "/"), op.Name)
		if err := c.get(ctx, pollURL, &op); err != nil {
			return nil, err
		}
		if op.Metadata != nil && op.Metadata.State != "" {
			progress(op.Metadata.State)
		}
	}

	if op.Error != nil {
		return nil, fmt.Errorf("gemini video render failed: %s", op.Error.Message)
	}
	if op.Response == nil || len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return nil, fmt.Errorf("gemini video render returned no samples")
	}

	sample := op.Response.GenerateVideoResponse.GeneratedSamples[0]
	return &genai.VideoResult{
		VideoRef: sample.Video.URI,
		AudioRef: sample.Audio.URI,
		// The video resource itself is the continuation handle for the
		// next segment.
		Continuation: sample.Video.URI,
	}, nil
}

// GenerateAngles implements genai.AngleGenerator with one generateContent
// call per requested angle against the parent scene's image.
func (c *Client) GenerateAngles(ctx context.Context, req *genai.AngleRequest) ([]genai.AngleResult, error) {
	out := make([]genai.AngleResult, 0, len(req.Angles))
	for _, angle := range req.Angles {
		prompt := fmt.Sprintf("Re-render this scene from a %s camera angle.", angle)
		if req.FocusSubject != "" {
			prompt += fmt.Sprintf(" Keep %s as the focal subject.", req.FocusSubject)
		}
		body := &generateRequest{
			Contents: []content{{
				Role:  "user",
				Parts: []part{imagePart(req.Scene.Image), {Text: prompt}},
			}},
			GenerationConfig: &generationConfig{
				ResponseModalities: []string{"IMAGE"},
				AspectRatio:        req.Params.AspectRatio,
			},
		}
		resp, err := c.generateContent(ctx, c.cfg.ImageModel, body)
		if err != nil {
			return nil, err
		}
		image, err := firstInlineImage(resp)
		if err != nil {
			return nil, err
		}
		out = append(out, genai.AngleResult{Angle: angle, Image: image})
	}
	return out, nil
}

// Synthesize implements genai.SpeechSynthesizer.
func (c *Client) Synthesize(ctx context.Context, req *genai.SpeechRequest) (*genai.SpeechResult, error) {
	body := &generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	resp, err := c.generateContent(ctx, c.cfg.SpeechModel, body)
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil {
				return &genai.SpeechResult{
					AudioRef: "data:" + p.InlineData.MimeType + ";base64," + p.InlineData.Data,
				}, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini speech synthesis returned no audio")
}

// Transcribe implements genai.Transcriber.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	body := &generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(audio)}},
				{Text: "Transcribe this narration verbatim. Return only the spoken text."},
			},
		}},
	}
	resp, err := c.generateContent(ctx, c.cfg.AnalysisModel, body)
	if err != nil {
		return "", err
	}
	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini transcription returned no text")
	}
	return strings.TrimSpace(text), nil
}

type characterDescription struct {
	Description string `json:"description"`
	Style       string `json:"style"`
}

// Describe implements genai.CharacterDescriber. The model is asked for a
// JSON object so the detected art style parses out reliably.
func (c *Client) Describe(ctx context.Context, image []byte) (*genai.Description, error) {
	body := &generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				imagePart(image),
				{Text: `Describe this character's visual identity for reuse in image generation prompts. Respond with JSON: {"description": "...", "style": "..."}`},
			},
		}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
		},
	}
	resp, err := c.generateContent(ctx, c.cfg.AnalysisModel, body)
	if err != nil {
		return nil, err
	}
	text := firstText(resp)
	var desc characterDescription
	if err := json.Unmarshal([]byte(text), &desc); err != nil {
		return nil, fmt.Errorf("gemini description parse: %w", err)
	}
	return &genai.Description{Text: desc.Description, DetectedStyle: desc.Style}, nil
}

func (c *Client) generateContent(ctx context.Context, model string, body *generateRequest) (*generateResponse, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), model)
	var resp generateResponse
	if err := c.post(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini request blocked: %s", resp.PromptFeedback.BlockReason)
	}
	for _, cand := range resp.Candidates {
		if cand.FinishReason == "SAFETY" || cand.FinishReason == "PROHIBITED_CONTENT" {
			return nil, fmt.Errorf("gemini response blocked by safety filters: %s", cand.FinishReason)
		}
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.buildHeaders(httpReq)
	return c.do(httpReq, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.buildHeaders(httpReq)
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini request failed: status=%d msg=%s", resp.StatusCode, readErrMsg(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) buildHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
}

func buildImagePrompt(req *genai.ImageRequest) string {
	var sb strings.Builder
	sb.WriteString(req.Prompt)
	if req.Params.Style != "" {
		sb.WriteString(". Art style: ")
		sb.WriteString(req.Params.Style)
	}
	if req.Params.Genre != "" {
		sb.WriteString(". Genre: ")
		sb.WriteString(req.Params.Genre)
	}
	for _, ch := range req.Characters {
		if ch.Description != "" {
			sb.WriteString(". Character ")
			sb.WriteString(ch.Name)
			sb.WriteString(": ")
			sb.WriteString(ch.Description)
		}
	}
	return sb.String()
}

func imagePart(data []byte) part {
	return part{InlineData: inlinePart(data)}
}

func inlinePart(data []byte) *inlineData {
	return &inlineData{
		MimeType: http.DetectContentType(data),
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

func firstInlineImage(resp *generateResponse) ([]byte, error) {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini image decode: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("gemini response contained no image")
}

func firstText(resp *generateResponse) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

func readErrMsg(r io.Reader) string {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 8192))
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
