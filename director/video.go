package director

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/genai"
	"github.com/storyflow-ai/storyflow/types"
)

// GenerateClip renders the first (or another independent) clip for a scene
// and appends it to the scene's chain.
func (d *Director) GenerateClip(ctx context.Context, ref types.SceneRef) error {
	ctx, span := d.tracer.Start(ctx, "director.GenerateClip")
	defer span.End()
	return d.renderClip(ctx, ref, "")
}

// ExtendClip renders a follow-on clip that continues the chain's last clip.
// The continuation precondition is checked locally first: when the chain is
// empty or the last clip carries no handle, the call fails with
// ExtensionUnavailable without contacting the generation service and without
// touching the clip list; the failure is recorded on the video state like
// any other.
func (d *Director) ExtendClip(ctx context.Context, ref types.SceneRef) error {
	ctx, span := d.tracer.Start(ctx, "director.ExtendClip")
	defer span.End()

	handle, err := d.store.LastContinuation(ref)
	if err != nil {
		if types.IsErrorCode(err, types.ErrExtensionUnavailable) {
			if ferr := d.store.FailVideo(ref, types.UserMessage(err)); ferr != nil {
				d.logger.Warn("extension failure not recorded", zap.Error(ferr))
			}
		}
		if d.metrics != nil {
			d.metrics.RecordClipExtension("unavailable")
		}
		return err
	}

	err = d.renderClip(ctx, ref, handle)
	if d.metrics != nil {
		d.metrics.RecordClipExtension(outcome(err))
	}
	return err
}

// renderClip is the shared clip generation path. A failed attempt never
// mutates the existing clip list; it only records the error on the video
// state.
func (d *Director) renderClip(ctx context.Context, ref types.SceneRef, continuation string) error {
	sess, err := d.store.Session(ref.SessionID)
	if err != nil {
		return err
	}
	if ref.SceneIndex < 0 || ref.SceneIndex >= len(sess.Scenes) {
		return types.NewError(types.ErrSceneNotFound, "no scene at index")
	}
	scene := sess.Scenes[ref.SceneIndex]
	if scene.Status != types.SceneComplete || len(scene.Image) == 0 {
		return types.NewError(types.ErrInvalidRequest, "scene has no image to animate")
	}
	if err := d.preflight(d.costs.Video); err != nil {
		return err
	}

	video := sess.VideoStates[ref.SceneIndex]
	token, callCtx := d.ctrl.Start(ctx)

	start := time.Now()
	if err := d.store.BeginVideo(ref, "Starting video render"); err != nil {
		return err
	}

	res, err := d.svc.GenerateVideo(callCtx, &genai.VideoRequest{
		SceneImage:     scene.Image,
		Script:         video.Narration,
		Params:         sess.Params,
		Model:          sess.Params.VideoModel,
		Resolution:     sess.Params.Resolution,
		CameraMovement: video.CameraMovement,
		Continuation:   continuation,
		OnProgress: func(message string) {
			d.store.SetVideoProgress(ref, message)
		},
	})

	if token.Cancelled() {
		d.store.AbandonVideo(ref, types.StoppedMessage)
		d.recordGeneration("video", types.NewStoppedError(), start)
		return types.NewStoppedError()
	}
	if err != nil {
		msg := serviceMessage(err)
		if ferr := d.store.FailVideo(ref, msg); ferr != nil {
			d.logger.Warn("video failure not recorded", zap.Error(ferr))
		}
		d.recordGeneration("video", err, start)
		return types.NewServiceError(err)
	}

	if err := d.store.AppendClip(ref, types.VideoClip{
		VideoRef:     res.VideoRef,
		AudioRef:     res.AudioRef,
		Continuation: res.Continuation,
	}); err != nil {
		return err
	}
	d.debit(d.costs.Video)
	d.recordGeneration("video", nil, start)
	d.scheduleFlush()
	return nil
}

// RemoveLastClip pops the tail of the scene's chain; a later extension will
// reuse the now-last clip's continuation handle.
func (d *Director) RemoveLastClip(ref types.SceneRef) error {
	if err := d.store.RemoveLastClip(ref); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// SetNarration updates the scene's narration script.
func (d *Director) SetNarration(ref types.SceneRef, narration string) error {
	if err := d.store.SetNarration(ref, narration); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// SetCameraMovement selects the camera movement used for the next clip.
func (d *Director) SetCameraMovement(ref types.SceneRef, movement string) error {
	if err := d.store.SetCameraMovement(ref, movement); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// SetVoiceoverMode switches between synthesized and uploaded voiceover.
func (d *Director) SetVoiceoverMode(ref types.SceneRef, mode types.VoiceoverMode) error {
	if err := d.store.SetVoiceoverMode(ref, mode); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// SynthesizeNarration renders the scene's narration as speech and returns
// the audio reference. The scene must be in synthesized-voiceover mode.
func (d *Director) SynthesizeNarration(ctx context.Context, ref types.SceneRef, voice string) (string, error) {
	ctx, span := d.tracer.Start(ctx, "director.SynthesizeNarration")
	defer span.End()

	sess, err := d.store.Session(ref.SessionID)
	if err != nil {
		return "", err
	}
	if ref.SceneIndex < 0 || ref.SceneIndex >= len(sess.VideoStates) {
		return "", types.NewError(types.ErrSceneNotFound, "no scene at index")
	}
	video := sess.VideoStates[ref.SceneIndex]
	if video.VoiceoverMode != types.VoiceoverSynthesized {
		return "", types.NewError(types.ErrInvalidRequest, "scene uses uploaded voiceover")
	}
	if video.Narration == "" {
		return "", types.NewError(types.ErrInvalidRequest, "scene has no narration to synthesize")
	}

	token, callCtx := d.ctrl.Start(ctx)
	res, err := d.svc.Synthesize(callCtx, &genai.SpeechRequest{Text: video.Narration, Voice: voice})
	if token.Cancelled() {
		return "", types.NewStoppedError()
	}
	if err != nil {
		return "", types.NewServiceError(err)
	}
	return res.AudioRef, nil
}

// TranscribeNarration converts uploaded audio into the scene's narration
// text. As a primary operation it claims the global cancellation channel.
func (d *Director) TranscribeNarration(ctx context.Context, ref types.SceneRef, audio []byte, mimeType string) (string, error) {
	ctx, span := d.tracer.Start(ctx, "director.TranscribeNarration")
	defer span.End()

	if len(audio) == 0 {
		return "", types.NewError(types.ErrInvalidRequest, "no audio provided")
	}

	token, callCtx := d.ctrl.Start(ctx)
	text, err := d.svc.Transcribe(callCtx, audio, mimeType)
	if token.Cancelled() {
		return "", types.NewStoppedError()
	}
	if err != nil {
		return "", types.NewServiceError(err)
	}

	if err := d.store.SetNarration(ref, text); err != nil {
		return "", err
	}
	if err := d.store.SetVoiceoverMode(ref, types.VoiceoverUploaded); err != nil {
		return "", err
	}
	d.scheduleFlush()
	return text, nil
}
