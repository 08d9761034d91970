package director

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/cancel"
	"github.com/storyflow-ai/storyflow/credit"
	"github.com/storyflow-ai/storyflow/genai"
	"github.com/storyflow-ai/storyflow/persist"
	"github.com/storyflow-ai/storyflow/session"
	"github.com/storyflow-ai/storyflow/testutil"
	"github.com/storyflow-ai/storyflow/testutil/mocks"
	"github.com/storyflow-ai/storyflow/types"
)

var testCosts = Costs{Image: 20, Video: 150, Edit: 20, Angle: 20}

type fixture struct {
	d      *Director
	store  *session.Store
	ledger *credit.Ledger
	svc    *mocks.GenService
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := session.New(logger)
	ctrl := cancel.New(logger)
	ledger := credit.New(balance, "USD", 1, logger)
	ps := persist.NewStore(persist.NewMemoryKV(1<<20), logger)
	svc := mocks.NewGenService()

	d := New(store, ctrl, ledger, ps, svc, Options{
		Logger: logger,
		Costs:  testCosts,
	})
	return &fixture{d: d, store: store, ledger: ledger, svc: svc}
}

func (f *fixture) storyboard(t *testing.T, prompts ...string) string {
	t.Helper()
	id, err := f.d.GenerateStoryboard(testutil.TestContext(t), &StoryboardRequest{
		Title:        "Night Market",
		ScenePrompts: prompts,
	})
	require.NoError(t, err)
	f.d.WaitFlush()
	return id
}

func TestGenerateStoryboardAllScenesComplete(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk", "vendor stalls", "rain begins")

	sess, err := f.store.Session(id)
	require.NoError(t, err)
	require.Len(t, sess.Scenes, 3)
	for i, scene := range sess.Scenes {
		assert.Equal(t, types.SceneComplete, scene.Status, "scene %d", i)
		assert.NotEmpty(t, scene.Image)
	}
	assert.Equal(t, int64(1000-3*testCosts.Image), f.ledger.Balance())
	assert.Equal(t, 3, f.svc.Calls("Generate"))
}

func TestGenerateStoryboardStopMidBatch(t *testing.T) {
	f := newFixture(t, 1000)

	// Second call triggers the global stop while "in flight": its result
	// must be discarded, the third scene never attempted.
	calls := 0
	f.svc.GenerateFunc = func(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error) {
		calls++
		if calls == 2 {
			f.d.Stop()
		}
		return &genai.ImageResult{Image: []byte("img")}, nil
	}

	id := f.storyboard(t, "one", "two", "three")

	sess, err := f.store.Session(id)
	require.NoError(t, err)
	assert.Equal(t, types.SceneComplete, sess.Scenes[0].Status)
	assert.Equal(t, types.SceneError, sess.Scenes[1].Status)
	assert.Equal(t, types.StoppedMessage, sess.Scenes[1].Error)
	assert.Empty(t, sess.Scenes[1].Image, "late result discarded")
	assert.Equal(t, types.ScenePending, sess.Scenes[2].Status)
	assert.Equal(t, 2, f.svc.Calls("Generate"))

	// Only the confirmed scene was charged.
	assert.Equal(t, int64(1000-testCosts.Image), f.ledger.Balance())
}

func TestStartInvalidationReleasesInFlightScene(t *testing.T) {
	f := newFixture(t, 1000)
	first := f.storyboard(t, "first story")

	// A batch blocks inside the service call while another primary operation
	// claims the cancellation channel. No stop hook runs for a Start, so the
	// reserved placeholder must be released on resume.
	block := make(chan struct{})
	started := make(chan struct{})
	f.svc.GenerateFunc = func(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error) {
		if req.Prompt == "blocked scene" {
			close(started)
			<-block
			return &genai.ImageResult{Image: []byte("late")}, nil
		}
		return &genai.ImageResult{Image: []byte("img")}, nil
	}

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := f.d.GenerateStoryboard(context.Background(), &StoryboardRequest{
			Title:        "Interrupted",
			ScenePrompts: []string{"blocked scene"},
		})
		done <- result{id: id, err: err}
	}()

	<-started
	require.NoError(t, f.d.RegenerateScene(testutil.TestContext(t),
		types.SceneRef{SessionID: first, SceneIndex: 0}))
	close(block)

	res := <-done
	require.NoError(t, res.err)
	f.d.WaitFlush()

	sess, err := f.store.Session(res.id)
	require.NoError(t, err)
	assert.Equal(t, types.SceneError, sess.Scenes[0].Status, "superseded scene must not stay generating")
	assert.Equal(t, types.StoppedMessage, sess.Scenes[0].Error)
	assert.Empty(t, sess.Scenes[0].Image, "late result discarded")

	// Charged for the first storyboard and the regeneration, never for the
	// superseded scene.
	assert.Equal(t, int64(1000-2*testCosts.Image), f.ledger.Balance())
}

func TestStartInvalidationReleasesInFlightClip(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	block := make(chan struct{})
	started := make(chan struct{})
	f.svc.VideoFunc = func(ctx context.Context, req *genai.VideoRequest) (*genai.VideoResult, error) {
		close(started)
		<-block
		return &genai.VideoResult{VideoRef: "late", Continuation: "h"}, nil
	}

	errc := make(chan error, 1)
	go func() {
		errc <- f.d.GenerateClip(context.Background(), ref)
	}()

	<-started
	require.NoError(t, f.d.RegenerateScene(testutil.TestContext(t), ref))
	close(block)

	err := <-errc
	assert.True(t, types.IsStopped(err))
	f.d.WaitFlush()

	sess, _ := f.store.Session(id)
	vs := sess.VideoStates[0]
	assert.Equal(t, types.VideoError, vs.Status, "superseded render must not stay loading")
	assert.Equal(t, types.StoppedMessage, vs.LastError)
	assert.Empty(t, vs.Clips, "late clip discarded")
}

func TestGenerateStoryboardQuotaRejectedBeforePlaceholder(t *testing.T) {
	f := newFixture(t, testCosts.Image*2) // can afford 2, asking for 3

	_, err := f.d.GenerateStoryboard(testutil.TestContext(t), &StoryboardRequest{
		Title:        "Too Rich",
		ScenePrompts: []string{"a", "b", "c"},
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrQuotaExceeded))
	assert.Empty(t, f.store.Sessions(), "no session created on quota rejection")
	assert.Equal(t, 0, f.svc.Calls("Generate"))
}

func TestGenerateStoryboardValidation(t *testing.T) {
	f := newFixture(t, 1000)

	_, err := f.d.GenerateStoryboard(testutil.TestContext(t), &StoryboardRequest{Title: "Untitled"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = f.d.GenerateStoryboard(testutil.TestContext(t), &StoryboardRequest{
		Title:        "",
		ScenePrompts: []string{"x"},
	})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestRegenerateSceneReplacesImage(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	before, _ := f.store.Session(id)
	require.NoError(t, f.d.RegenerateScene(testutil.TestContext(t), ref))
	f.d.WaitFlush()

	after, _ := f.store.Session(id)
	assert.NotEqual(t, before.Scenes[0].Image, after.Scenes[0].Image)
	assert.Equal(t, types.SceneComplete, after.Scenes[0].Status)
}

func TestServiceFailureRecordedOnScene(t *testing.T) {
	f := newFixture(t, 1000)
	f.svc.GenerateFunc = func(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error) {
		return nil, errors.New("upstream exploded")
	}

	id := f.storyboard(t, "doomed")
	sess, _ := f.store.Session(id)
	assert.Equal(t, types.SceneError, sess.Scenes[0].Status)
	assert.NotEqual(t, types.StoppedMessage, sess.Scenes[0].Error,
		"service failure must not read as a user stop")
	assert.Equal(t, int64(1000), f.ledger.Balance(), "no debit on failure")
}

func TestSafetyBlockMessage(t *testing.T) {
	f := newFixture(t, 1000)
	f.svc.GenerateFunc = func(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error) {
		return nil, errors.New("request blocked by SAFETY policy")
	}

	id := f.storyboard(t, "edgy prompt")
	sess, _ := f.store.Session(id)
	assert.Contains(t, sess.Scenes[0].Error, "content safety")
	assert.Contains(t, sess.Scenes[0].Error, "Rephrase")
}

func TestGenerateAndExtendClip(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}
	ctx := testutil.TestContext(t)

	require.NoError(t, f.d.GenerateClip(ctx, ref))
	require.NoError(t, f.d.ExtendClip(ctx, ref))
	f.d.WaitFlush()

	sess, _ := f.store.Session(id)
	vs := sess.VideoStates[0]
	require.Len(t, vs.Clips, 2)
	assert.Equal(t, types.VideoSuccess, vs.Status)
	assert.Equal(t, 1, vs.CurrentClip, "newest clip auto-selected")
	assert.Equal(t, "handle-1", vs.Clips[0].Continuation)
	assert.Equal(t, "handle-2", vs.Clips[1].Continuation)
}

func TestExtendClipRequiresContinuationLocally(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	err := f.d.ExtendClip(testutil.TestContext(t), ref)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrExtensionUnavailable))
	assert.Equal(t, 0, f.svc.Calls("GenerateVideo"), "precondition checked before any service call")

	// The failure is recorded on the video state like any other; the clip
	// list stays untouched.
	sess, _ := f.store.Session(id)
	vs := sess.VideoStates[0]
	assert.Equal(t, types.VideoError, vs.Status)
	assert.NotEmpty(t, vs.LastError)
	assert.Empty(t, vs.Clips)
}

func TestExtendClipRewindsAfterRemoveLast(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}
	ctx := testutil.TestContext(t)

	require.NoError(t, f.d.GenerateClip(ctx, ref)) // handle-1
	require.NoError(t, f.d.ExtendClip(ctx, ref))   // handle-2, continues handle-1
	require.NoError(t, f.d.RemoveLastClip(ref))

	var continuedFrom string
	f.svc.VideoFunc = func(ctx context.Context, req *genai.VideoRequest) (*genai.VideoResult, error) {
		continuedFrom = req.Continuation
		return &genai.VideoResult{VideoRef: "v", Continuation: "h"}, nil
	}
	require.NoError(t, f.d.ExtendClip(ctx, ref))
	assert.Equal(t, "handle-1", continuedFrom, "extension continues the surviving last clip")
}

func TestClipFailureLeavesChainUntouched(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}
	ctx := testutil.TestContext(t)

	require.NoError(t, f.d.GenerateClip(ctx, ref))

	f.svc.VideoFunc = func(ctx context.Context, req *genai.VideoRequest) (*genai.VideoResult, error) {
		return nil, errors.New("render farm down")
	}
	err := f.d.ExtendClip(ctx, ref)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrServiceFailure))

	sess, _ := f.store.Session(id)
	vs := sess.VideoStates[0]
	assert.Len(t, vs.Clips, 1, "failed extension mutates no clips")
	assert.Equal(t, types.VideoError, vs.Status)
	assert.NotEmpty(t, vs.LastError)
}

func TestClipProgressForwarded(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	var seen string
	f.svc.VideoFunc = func(ctx context.Context, req *genai.VideoRequest) (*genai.VideoResult, error) {
		req.OnProgress("Rendering frame 12/96")
		sess, _ := f.store.Session(id)
		seen = sess.VideoStates[0].Progress
		return &genai.VideoResult{VideoRef: "v"}, nil
	}
	require.NoError(t, f.d.GenerateClip(testutil.TestContext(t), ref))
	assert.Equal(t, "Rendering frame 12/96", seen)
}

func TestEditFlow(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}
	ctx := testutil.TestContext(t)

	es, err := f.d.BeginEdit(ref)
	require.NoError(t, err)
	original := es.Current()

	first, err := f.d.ApplyEdit(ctx, ref, EditInstruction{Prompt: "remove the lamppost"})
	require.NoError(t, err)
	second, err := f.d.ApplyEdit(ctx, ref, EditInstruction{Prompt: "add rain"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	undone, err := f.d.UndoEdit(ref)
	require.NoError(t, err)
	assert.Equal(t, first, undone)

	redone, err := f.d.RedoEdit(ref)
	require.NoError(t, err)
	assert.Equal(t, second, redone)

	require.NoError(t, f.d.SaveEdit(ref))
	f.d.WaitFlush()

	sess, _ := f.store.Session(id)
	assert.Equal(t, second, sess.Scenes[0].Image)
	assert.NotEqual(t, original, sess.Scenes[0].Image)
	assert.Equal(t, int64(1000-testCosts.Image-2*testCosts.Edit), f.ledger.Balance())

	// Session is closed; further steps need a new BeginEdit.
	_, err = f.d.UndoEdit(ref)
	assert.Error(t, err)
}

func TestCancelEditLeavesSceneUntouched(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}
	ctx := testutil.TestContext(t)

	before, _ := f.store.Session(id)

	_, err := f.d.BeginEdit(ref)
	require.NoError(t, err)
	_, err = f.d.ApplyEdit(ctx, ref, EditInstruction{Prompt: "make it worse"})
	require.NoError(t, err)
	require.NoError(t, f.d.CancelEdit(ref))

	after, _ := f.store.Session(id)
	assert.Equal(t, before.Scenes[0].Image, after.Scenes[0].Image)
}

func TestBeginEditReturnsExistingSession(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	a, err := f.d.BeginEdit(ref)
	require.NoError(t, err)
	b, err := f.d.BeginEdit(ref)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestSaveEditSurvivesDerivedSceneSplice(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk", "vendor stalls")
	ctx := testutil.TestContext(t)
	target := types.SceneRef{SessionID: id, SceneIndex: 1}

	_, err := f.d.BeginEdit(target)
	require.NoError(t, err)
	edited, err := f.d.ApplyEdit(ctx, target, EditInstruction{Prompt: "add rain"})
	require.NoError(t, err)

	// Angle derivatives splice in after scene 0, shifting the edit target.
	inserted, err := f.d.GenerateAngles(ctx, AnglesRequest{
		Ref:    types.SceneRef{SessionID: id, SceneIndex: 0},
		Angles: []string{"low angle"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	// The stale index now addresses the derived scene, which has no open
	// edit; the commit must not land there.
	err = f.d.SaveEdit(target)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	shifted := types.SceneRef{SessionID: id, SceneIndex: target.SceneIndex + inserted}
	require.NoError(t, f.d.SaveEdit(shifted))
	f.d.WaitFlush()

	sess, _ := f.store.Session(id)
	require.Len(t, sess.Scenes, 3)
	assert.Equal(t, edited, sess.Scenes[2].Image, "edit committed to the shifted original")
	require.NotNil(t, sess.Scenes[1].DerivedFrom)
	assert.NotEqual(t, edited, sess.Scenes[1].Image, "derived scene never receives the edit")
}

func TestEditFollowsSceneAcrossReorder(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk", "vendor stalls")
	ctx := testutil.TestContext(t)

	_, err := f.d.BeginEdit(types.SceneRef{SessionID: id, SceneIndex: 0})
	require.NoError(t, err)
	edited, err := f.d.ApplyEdit(ctx, types.SceneRef{SessionID: id, SceneIndex: 0}, EditInstruction{Prompt: "add rain"})
	require.NoError(t, err)

	require.NoError(t, f.d.ReorderScenes(id, 0, 1))
	require.NoError(t, f.d.SaveEdit(types.SceneRef{SessionID: id, SceneIndex: 1}))
	f.d.WaitFlush()

	sess, _ := f.store.Session(id)
	assert.Equal(t, "alley at dusk", sess.Scenes[1].Prompt)
	assert.Equal(t, edited, sess.Scenes[1].Image)
	assert.NotEqual(t, edited, sess.Scenes[0].Image)
}

func TestGenerateAnglesSplicesDerivedScenes(t *testing.T) {
	f := newFixture(t, 10000)
	id := f.storyboard(t, "alley at dusk", "vendor stalls")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	inserted, err := f.d.GenerateAngles(testutil.TestContext(t), AnglesRequest{
		Ref:    ref,
		Angles: []string{"low angle", "overhead"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	f.d.WaitFlush()

	sess, _ := f.store.Session(id)
	require.Len(t, sess.Scenes, 4)
	require.Len(t, sess.VideoStates, 4)

	assert.Nil(t, sess.Scenes[0].DerivedFrom)
	require.NotNil(t, sess.Scenes[1].DerivedFrom)
	assert.Equal(t, 0, *sess.Scenes[1].DerivedFrom)
	require.NotNil(t, sess.Scenes[2].DerivedFrom)
	assert.Equal(t, types.SceneComplete, sess.Scenes[1].Status)
	assert.Equal(t, "vendor stalls", sess.Scenes[3].Prompt, "original second scene shifted right")

	assert.Equal(t, int64(10000-2*testCosts.Image-2*testCosts.Angle), f.ledger.Balance())
}

func TestGenerateAnglesQuota(t *testing.T) {
	f := newFixture(t, testCosts.Image+testCosts.Angle) // one image, one angle
	id := f.storyboard(t, "alley at dusk")

	_, err := f.d.GenerateAngles(testutil.TestContext(t), AnglesRequest{
		Ref:    types.SceneRef{SessionID: id, SceneIndex: 0},
		Angles: []string{"a", "b"},
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrQuotaExceeded))
	assert.Equal(t, 0, f.svc.Calls("GenerateAngles"))
}

func TestToggleBookmarkRoundTrip(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}
	ctx := testutil.TestContext(t)

	on, err := f.d.ToggleBookmark(ctx, ref)
	require.NoError(t, err)
	assert.True(t, on)
	require.Len(t, f.d.Bookmarks(), 1)
	assert.False(t, f.d.Bookmarks()[0].ExpiresAt.IsZero())

	off, err := f.d.ToggleBookmark(ctx, ref)
	require.NoError(t, err)
	assert.False(t, off)
	assert.Empty(t, f.d.Bookmarks())
}

func TestDescribeCharacter(t *testing.T) {
	f := newFixture(t, 1000)

	ch, err := f.d.AddCharacter("Mara", []byte("portrait"))
	require.NoError(t, err)

	described, err := f.d.DescribeCharacter(testutil.TestContext(t), ch.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, described.Description)
	assert.NotEmpty(t, described.DetectedStyle)
	assert.False(t, described.Describing)
}

func TestDescribeCharacterUnknown(t *testing.T) {
	f := newFixture(t, 1000)
	_, err := f.d.DescribeCharacter(testutil.TestContext(t), "nope")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestTranscribeNarration(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	text, err := f.d.TranscribeNarration(testutil.TestContext(t), ref, []byte("wav-bytes"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "transcribed narration", text)
	f.d.WaitFlush()

	sess, _ := f.store.Session(id)
	assert.Equal(t, text, sess.VideoStates[0].Narration)
	assert.Equal(t, types.VoiceoverUploaded, sess.VideoStates[0].VoiceoverMode)
}

func TestSynthesizeNarration(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}
	ctx := testutil.TestContext(t)

	_, err := f.d.SynthesizeNarration(ctx, ref, "")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest), "no narration yet")

	require.NoError(t, f.d.SetNarration(ref, "she steps into the rain"))
	audioRef, err := f.d.SynthesizeNarration(ctx, ref, "narrator-1")
	require.NoError(t, err)
	assert.NotEmpty(t, audioRef)

	require.NoError(t, f.d.SetVoiceoverMode(ref, types.VoiceoverUploaded))
	_, err = f.d.SynthesizeNarration(ctx, ref, "")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestSessionCharactersForwardedToGeneration(t *testing.T) {
	f := newFixture(t, 1000)
	ch, err := f.d.AddCharacter("Mara", []byte("portrait"))
	require.NoError(t, err)

	var got []*types.Character
	f.svc.GenerateFunc = func(ctx context.Context, req *genai.ImageRequest) (*genai.ImageResult, error) {
		got = req.Characters
		return &genai.ImageResult{Image: []byte("img")}, nil
	}

	_, err = f.d.GenerateStoryboard(testutil.TestContext(t), &StoryboardRequest{
		Title:        "With Cast",
		ScenePrompts: []string{"alley"},
		Params:       types.GenerationParams{CharacterIDs: []string{ch.ID, "unknown-id"}},
	})
	require.NoError(t, err)
	f.d.WaitFlush()
	require.Len(t, got, 1, "unknown ids skipped")
	assert.Equal(t, "Mara", got[0].Name)
}

func TestUpdateSettingsChangesDisplayCurrency(t *testing.T) {
	f := newFixture(t, 1000)
	require.NoError(t, f.d.UpdateSettings(testutil.TestContext(t), &types.Settings{
		DisplayCurrency: "EUR",
		ConversionRate:  0.9,
	}))

	snap := f.d.Snapshot()
	assert.Equal(t, "EUR", snap.DisplayCurrency)
	assert.InDelta(t, 9.0, snap.DisplayBalance, 0.001) // 1000 cents * 0.9
}

func TestSnapshotMergesLedger(t *testing.T) {
	f := newFixture(t, 1000)
	f.storyboard(t, "alley at dusk")

	snap := f.d.Snapshot()
	assert.Equal(t, int64(1000-testCosts.Image), snap.CreditBalance)
	assert.Equal(t, "USD", snap.DisplayCurrency)
	assert.Equal(t, int64(1), snap.DailyUsage)
	assert.Equal(t, testCosts.Image, snap.DailySpend)
	require.Len(t, snap.Sessions, 1)
}

func TestLoadRestoresPersistedState(t *testing.T) {
	logger := zap.NewNop()
	kv := persist.NewMemoryKV(1 << 20)
	ps := persist.NewStore(kv, logger)

	build := func() *fixture {
		store := session.New(logger)
		ctrl := cancel.New(logger)
		ledger := credit.New(1000, "USD", 1, logger)
		svc := mocks.NewGenService()
		d := New(store, ctrl, ledger, ps, svc, Options{Logger: logger, Costs: testCosts})
		return &fixture{d: d, store: store, ledger: ledger, svc: svc}
	}

	first := build()
	id := first.storyboard(t, "alley at dusk")
	require.NoError(t, first.store.SetActive(id))
	_, err := first.d.ToggleBookmark(testutil.TestContext(t), types.SceneRef{SessionID: id, SceneIndex: 0})
	require.NoError(t, err)
	first.d.scheduleFlush()
	first.d.WaitFlush()

	second := build()
	require.NoError(t, second.d.Load(testutil.TestContext(t)))

	restored := second.store.ActiveSession()
	require.NotNil(t, restored)
	assert.Equal(t, id, restored.ID)
	assert.Len(t, second.d.Bookmarks(), 1)
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t, 1000)
	f.d.Stop()
	f.d.Stop()
	f.d.WaitFlush()

	// A fresh operation after a stop runs on a new generation.
	id := f.storyboard(t, "after the stop")
	sess, _ := f.store.Session(id)
	assert.Equal(t, types.SceneComplete, sess.Scenes[0].Status)
}

func TestDeleteSessionDropsOpenEdits(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.storyboard(t, "alley at dusk")
	ref := types.SceneRef{SessionID: id, SceneIndex: 0}

	_, err := f.d.BeginEdit(ref)
	require.NoError(t, err)
	require.NoError(t, f.d.DeleteSession(id))
	f.d.WaitFlush()

	err = f.d.SaveEdit(ref)
	assert.Error(t, err, "edit session dropped with its owner")
	assert.Empty(t, f.store.Sessions())
}

func TestMaxScenesCap(t *testing.T) {
	f := newFixture(t, 1_000_000)
	prompts := make([]string, 13)
	for i := range prompts {
		prompts[i] = "p"
	}
	_, err := f.d.GenerateStoryboard(testutil.TestContext(t), &StoryboardRequest{
		Title:        "Epic",
		ScenePrompts: prompts,
	})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestThrottleConfigured(t *testing.T) {
	logger := zap.NewNop()
	store := session.New(logger)
	ctrl := cancel.New(logger)
	ledger := credit.New(1000, "USD", 1, logger)
	ps := persist.NewStore(persist.NewMemoryKV(1<<20), logger)
	svc := mocks.NewGenService()

	d := New(store, ctrl, ledger, ps, svc, Options{
		Logger:   logger,
		Costs:    testCosts,
		Throttle: 10 * time.Millisecond,
	})

	start := time.Now()
	_, err := d.GenerateStoryboard(testutil.TestContext(t), &StoryboardRequest{
		Title:        "Paced",
		ScenePrompts: []string{"a", "b", "c"},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	d.WaitFlush()
}
