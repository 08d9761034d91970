package director

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/edit"
	"github.com/storyflow-ai/storyflow/genai"
	"github.com/storyflow-ai/storyflow/types"
)

// EditInstruction is one masked edit applied to the scene's current edit
// state.
type EditInstruction struct {
	Prompt         string `json:"prompt" validate:"required"`
	MaskOverlay    []byte `json:"mask_overlay,omitempty"`
	ReferenceImage []byte `json:"reference_image,omitempty"`
}

// BeginEdit opens an edit session over the scene's current image. At most
// one session per scene is open at a time; reopening returns the existing
// one so its undo history survives. Sessions are keyed by the scene's stable
// id, not its index, so angle splices and reorders never redirect an open
// edit to a different scene.
func (d *Director) BeginEdit(ref types.SceneRef) (*edit.Session, error) {
	scene, err := d.sceneFor(ref)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if es, ok := d.edits[scene.ID]; ok {
		return es, nil
	}
	if scene.Status != types.SceneComplete || len(scene.Image) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "scene has no image to edit")
	}

	es := edit.NewSession(ref, scene.Image, d.logger)
	d.edits[scene.ID] = es
	return es, nil
}

// ApplyEdit runs one edit instruction against the session's current state
// and, on success, pushes the result onto the undo history.
func (d *Director) ApplyEdit(ctx context.Context, ref types.SceneRef, instr EditInstruction) ([]byte, error) {
	ctx, span := d.tracer.Start(ctx, "director.ApplyEdit")
	defer span.End()

	if err := d.validate.Struct(&instr); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid edit instruction").WithCause(err)
	}

	es, err := d.editSession(ref)
	if err != nil {
		return nil, err
	}
	if err := d.preflight(d.costs.Edit); err != nil {
		return nil, err
	}

	token, callCtx := d.ctrl.Start(ctx)
	start := time.Now()

	res, err := d.svc.Edit(callCtx, &genai.EditRequest{
		Image:          es.Current(),
		Prompt:         instr.Prompt,
		MaskOverlay:    instr.MaskOverlay,
		ReferenceImage: instr.ReferenceImage,
	})
	if token.Cancelled() {
		d.recordGeneration("edit", types.NewStoppedError(), start)
		return nil, types.NewStoppedError()
	}
	if err != nil {
		d.recordGeneration("edit", err, start)
		return nil, types.NewServiceError(err)
	}

	es.Apply(res.Image)
	d.debit(d.costs.Edit)
	d.recordGeneration("edit", nil, start)
	return res.Image, nil
}

// UndoEdit steps the session's history back and returns the image to show.
func (d *Director) UndoEdit(ref types.SceneRef) ([]byte, error) {
	es, err := d.editSession(ref)
	if err != nil {
		return nil, err
	}
	return es.Undo(), nil
}

// RedoEdit steps the session's history forward and returns the image to show.
func (d *Director) RedoEdit(ref types.SceneRef) ([]byte, error) {
	es, err := d.editSession(ref)
	if err != nil {
		return nil, err
	}
	return es.Redo(), nil
}

// SaveEdit commits the session's current state into the owning scene and
// closes the session. The commit goes through the store by scene id, so it
// lands on the edited scene wherever splices have moved it, and a scene
// removed mid-edit fails cleanly instead of resurrecting.
func (d *Director) SaveEdit(ref types.SceneRef) error {
	scene, err := d.sceneFor(ref)
	if err != nil {
		return err
	}

	d.mu.Lock()
	es, ok := d.edits[scene.ID]
	if ok {
		delete(d.edits, scene.ID)
	}
	d.mu.Unlock()
	if !ok {
		return types.NewError(types.ErrInvalidRequest, "no open edit for scene")
	}

	if err := d.store.SetSceneImage(ref.SessionID, scene.ID, es.Save()); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// CancelEdit discards every change in the session and closes it. The scene's
// stored image was never touched, so nothing needs restoring.
func (d *Director) CancelEdit(ref types.SceneRef) error {
	scene, err := d.sceneFor(ref)
	if err != nil {
		return err
	}

	d.mu.Lock()
	es, ok := d.edits[scene.ID]
	if ok {
		delete(d.edits, scene.ID)
	}
	d.mu.Unlock()
	if !ok {
		return types.NewError(types.ErrInvalidRequest, "no open edit for scene")
	}
	es.Cancel()
	d.logger.Debug("edit discarded",
		zap.String("session_id", ref.SessionID),
		zap.Int("scene_index", ref.SceneIndex))
	return nil
}

func (d *Director) editSession(ref types.SceneRef) (*edit.Session, error) {
	scene, err := d.sceneFor(ref)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	es, ok := d.edits[scene.ID]
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, "no open edit for scene")
	}
	return es, nil
}

// sceneFor resolves the scene currently at ref. The returned scene is a
// deep copy from the store.
func (d *Director) sceneFor(ref types.SceneRef) (*types.Scene, error) {
	sess, err := d.store.Session(ref.SessionID)
	if err != nil {
		return nil, err
	}
	if ref.SceneIndex < 0 || ref.SceneIndex >= len(sess.Scenes) {
		return nil, types.NewError(types.ErrSceneNotFound, "no scene at index")
	}
	return sess.Scenes[ref.SceneIndex], nil
}
