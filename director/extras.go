package director

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/genai"
	"github.com/storyflow-ai/storyflow/types"
)

// AnglesRequest asks for derived camera-angle scenes of an existing scene.
type AnglesRequest struct {
	Ref          types.SceneRef
	Angles       []string `validate:"required,min=1,dive,required"`
	FocusSubject string
}

// GenerateAngles renders alternate camera angles of a completed scene and
// splices them in as derivative scenes right after the parent. It returns
// the number of scenes inserted so callers can shift any indices they hold.
func (d *Director) GenerateAngles(ctx context.Context, req AnglesRequest) (int, error) {
	ctx, span := d.tracer.Start(ctx, "director.GenerateAngles")
	defer span.End()

	if err := d.validate.Struct(&req); err != nil {
		return 0, types.NewError(types.ErrInvalidRequest, "invalid angles request").WithCause(err)
	}

	sess, err := d.store.Session(req.Ref.SessionID)
	if err != nil {
		return 0, err
	}
	if req.Ref.SceneIndex < 0 || req.Ref.SceneIndex >= len(sess.Scenes) {
		return 0, types.NewError(types.ErrSceneNotFound, "no scene at index")
	}
	parent := sess.Scenes[req.Ref.SceneIndex]
	if parent.Status != types.SceneComplete || len(parent.Image) == 0 {
		return 0, types.NewError(types.ErrInvalidRequest, "scene has no image to derive angles from")
	}
	if err := d.preflight(d.costs.Angle * int64(len(req.Angles))); err != nil {
		return 0, err
	}

	token, callCtx := d.ctrl.Start(ctx)
	start := time.Now()

	results, err := d.svc.GenerateAngles(callCtx, &genai.AngleRequest{
		Scene:        parent,
		Angles:       req.Angles,
		FocusSubject: req.FocusSubject,
		Params:       sess.Params,
	})
	if token.Cancelled() {
		d.recordGeneration("angles", types.NewStoppedError(), start)
		return 0, types.NewStoppedError()
	}
	if err != nil {
		d.recordGeneration("angles", err, start)
		return 0, types.NewServiceError(err)
	}

	derived := make([]*types.Scene, 0, len(results))
	for _, res := range results {
		parentIdx := req.Ref.SceneIndex
		derived = append(derived, &types.Scene{
			ID:          types.NewID(),
			Prompt:      parent.Prompt + " (" + res.Angle + ")",
			Image:       res.Image,
			Status:      types.SceneComplete,
			DerivedFrom: &parentIdx,
		})
	}

	inserted, err := d.store.InsertDerivedScenes(req.Ref.SessionID, req.Ref.SceneIndex, derived)
	if err != nil {
		return 0, err
	}
	d.debit(d.costs.Angle * int64(inserted))
	d.recordGeneration("angles", nil, start)
	d.scheduleFlush()
	return inserted, nil
}

// AddCharacter registers a reusable character identity.
func (d *Director) AddCharacter(name string, image []byte) (*types.Character, error) {
	if name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "character name required")
	}
	ch := &types.Character{
		ID:    types.NewID(),
		Name:  name,
		Image: image,
	}
	d.mu.Lock()
	d.characters[ch.ID] = ch
	d.mu.Unlock()
	return ch, nil
}

// Characters returns the registered characters.
func (d *Director) Characters() []*types.Character {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*types.Character, 0, len(d.characters))
	for _, ch := range d.characters {
		out = append(out, ch)
	}
	return out
}

// charactersByID resolves the session's selected character set. Unknown ids
// are skipped.
func (d *Director) charactersByID(ids []string) []*types.Character {
	if len(ids) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*types.Character, 0, len(ids))
	for _, id := range ids {
		if ch, ok := d.characters[id]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// DescribeCharacter analyzes the character's reference image. Concurrent
// calls for the same character are coalesced into a single service request.
func (d *Director) DescribeCharacter(ctx context.Context, id string) (*types.Character, error) {
	ctx, span := d.tracer.Start(ctx, "director.DescribeCharacter")
	defer span.End()

	d.mu.Lock()
	ch, ok := d.characters[id]
	if !ok {
		d.mu.Unlock()
		return nil, types.NewError(types.ErrInvalidRequest, "unknown character")
	}
	if len(ch.Image) == 0 {
		d.mu.Unlock()
		return nil, types.NewError(types.ErrInvalidRequest, "character has no reference image")
	}
	ch.Describing = true
	image := ch.Image
	d.mu.Unlock()

	res, err, _ := d.describeGroup.Do(id, func() (interface{}, error) {
		return d.svc.Describe(ctx, image)
	})

	d.mu.Lock()
	ch.Describing = false
	if err == nil {
		desc := res.(*genai.Description)
		ch.Description = desc.Text
		ch.DetectedStyle = desc.DetectedStyle
	}
	d.mu.Unlock()

	if err != nil {
		return nil, types.NewServiceError(err)
	}
	return ch, nil
}

// ToggleBookmark saves a snapshot of the scene and its video state, or
// removes the existing bookmark when the same scene is toggled again.
// Returns true when the scene is bookmarked after the call.
func (d *Director) ToggleBookmark(ctx context.Context, ref types.SceneRef) (bool, error) {
	sess, err := d.store.Session(ref.SessionID)
	if err != nil {
		return false, err
	}
	if ref.SceneIndex < 0 || ref.SceneIndex >= len(sess.Scenes) {
		return false, types.NewError(types.ErrSceneNotFound, "no scene at index")
	}
	scene := sess.Scenes[ref.SceneIndex]
	video := sess.VideoStates[ref.SceneIndex]

	key := ref.SessionID + "-" + scene.ID
	now := time.Now()

	d.mu.Lock()
	kept := d.bookmarks[:0:0]
	removed := false
	for _, item := range d.bookmarks {
		if item.Key() == key {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		kept = append(kept, &types.SavedItem{
			SessionID: ref.SessionID,
			SceneID:   scene.ID,
			Scene:     scene.Clone(),
			Video:     video.Clone(),
			Params:    sess.Params,
			CreatedAt: now,
			ExpiresAt: now.Add(d.bookmarkTTL),
		})
	}
	d.bookmarks = kept
	snapshot := append([]*types.SavedItem(nil), kept...)
	d.mu.Unlock()

	if err := d.persist.SaveBookmarks(ctx, snapshot); err != nil {
		d.logger.Error("bookmark save failed", zap.Error(err))
		return !removed, err
	}
	return !removed, nil
}

// Bookmarks returns the current saved items, newest last.
func (d *Director) Bookmarks() []*types.SavedItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*types.SavedItem(nil), d.bookmarks...)
}
