package director

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/genai"
	"github.com/storyflow-ai/storyflow/types"
)

// StoryboardRequest describes one batch generation: a session title and one
// image prompt per scene.
type StoryboardRequest struct {
	Title        string                 `validate:"required"`
	ScenePrompts []string               `validate:"required,min=1,dive,required"`
	Params       types.GenerationParams `validate:"-"`
}

// GenerateStoryboard creates a session with one pending placeholder per
// prompt and generates the scenes sequentially. Results are applied at the
// index reserved at request time; a fixed inter-call throttle respects the
// service's rate limits. The loop exits as soon as the token is invalidated,
// leaving never-attempted scenes pending.
func (d *Director) GenerateStoryboard(ctx context.Context, req *StoryboardRequest) (string, error) {
	ctx, span := d.tracer.Start(ctx, "director.GenerateStoryboard")
	defer span.End()

	if err := d.validate.Struct(req); err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "storyboard request is incomplete").WithCause(err)
	}
	if len(req.ScenePrompts) > d.maxScenes {
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("at most %d scenes per storyboard", d.maxScenes))
	}
	if err := d.preflight(d.costs.Image * int64(len(req.ScenePrompts))); err != nil {
		return "", err
	}

	sessionID, err := d.store.CreateSession(req.Title, req.Params, req.ScenePrompts)
	if err != nil {
		return "", err
	}
	d.scheduleFlush()

	token, callCtx := d.ctrl.Start(ctx)
	for i, prompt := range req.ScenePrompts {
		if token.Cancelled() {
			break
		}
		if i > 0 {
			// Fixed inter-call delay between successive service calls.
			if err := d.limiter.Wait(callCtx); err != nil {
				break
			}
		}

		ref := types.SceneRef{SessionID: sessionID, SceneIndex: i}
		d.generateScene(callCtx, token, ref, prompt, req.Params)
	}

	d.scheduleFlush()
	return sessionID, nil
}

// RegenerateScene re-runs image generation for a single scene. Per-scene
// operations share the global cancellation channel, so this aborts whatever
// else was in flight.
func (d *Director) RegenerateScene(ctx context.Context, ref types.SceneRef) error {
	ctx, span := d.tracer.Start(ctx, "director.RegenerateScene")
	defer span.End()

	sess, err := d.store.Session(ref.SessionID)
	if err != nil {
		return err
	}
	if ref.SceneIndex < 0 || ref.SceneIndex >= len(sess.Scenes) {
		return types.NewError(types.ErrSceneNotFound, "no scene at index")
	}
	if err := d.preflight(d.costs.Image); err != nil {
		return err
	}

	token, callCtx := d.ctrl.Start(ctx)
	err = d.generateScene(callCtx, token, ref, sess.Scenes[ref.SceneIndex].Prompt, sess.Params)
	d.scheduleFlush()
	return err
}

// generateScene runs one image generation against the reserved index. The
// token is checked on resume before any result is applied: the late result
// is discarded and the reserved placeholder released. A global Stop already
// marked it through the stop hook; a newer Start runs no hooks, so the
// release here is what keeps the scene from staying generating forever.
func (d *Director) generateScene(ctx context.Context, token cancelToken, ref types.SceneRef, prompt string, params types.GenerationParams) error {
	start := time.Now()
	d.store.BeginSceneGeneration(ref)

	res, err := d.svc.Generate(ctx, &genai.ImageRequest{
		Prompt:     prompt,
		Params:     params,
		Characters: d.charactersByID(params.CharacterIDs),
		Model:      params.ImageModel,
	})

	if token.Cancelled() {
		d.store.AbandonSceneGeneration(ref, types.StoppedMessage)
		d.recordGeneration("image", types.NewStoppedError(), start)
		return types.NewStoppedError()
	}
	if err != nil {
		msg := serviceMessage(err)
		d.store.FailSceneGeneration(ref, msg)
		d.recordGeneration("image", err, start)
		d.logger.Warn("scene generation failed",
			zap.String("session_id", ref.SessionID),
			zap.Int("scene_index", ref.SceneIndex),
			zap.Error(err))
		return types.NewServiceError(err)
	}

	d.store.CompleteSceneGeneration(ref, res.Image)
	d.debit(d.costs.Image)
	d.recordGeneration("image", nil, start)
	return nil
}

// cancelToken is the subset of the cancellation token the loops need.
type cancelToken interface {
	Cancelled() bool
	Err() error
}
