package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCloneIsDeep(t *testing.T) {
	parent := 0
	s := &Session{
		ID:    NewID(),
		Title: "storm at sea",
		Params: GenerationParams{
			Style:        "watercolor",
			CharacterIDs: []string{"c1"},
		},
		Scenes: []*Scene{
			{ID: NewID(), Prompt: "a ship", Status: SceneComplete, Image: []byte{1, 2, 3}},
			{ID: NewID(), Prompt: "same ship, low angle", Status: ScenePending, DerivedFrom: &parent},
		},
		VideoStates: []*VideoState{
			{Status: VideoSuccess, Clips: []VideoClip{{VideoRef: "v1", Continuation: "h1"}}, CurrentClip: 0},
			NewVideoState(),
		},
	}

	c := s.Clone()
	require.Equal(t, s, c)

	c.Scenes[0].Image[0] = 9
	c.Scenes[1].Hidden = true
	*c.Scenes[1].DerivedFrom = 7
	c.VideoStates[0].Clips[0].Continuation = "h2"
	c.Params.CharacterIDs[0] = "c2"

	assert.Equal(t, byte(1), s.Scenes[0].Image[0])
	assert.False(t, s.Scenes[1].Hidden)
	assert.Equal(t, 0, *s.Scenes[1].DerivedFrom)
	assert.Equal(t, "h1", s.VideoStates[0].Clips[0].Continuation)
	assert.Equal(t, "c1", s.Params.CharacterIDs[0])
}

func TestNewVideoStateDefaults(t *testing.T) {
	v := NewVideoState()
	assert.Equal(t, VideoIdle, v.Status)
	assert.Equal(t, NoClip, v.CurrentClip)
	assert.Equal(t, VoiceoverSynthesized, v.VoiceoverMode)
	assert.Equal(t, DefaultCameraMovement, v.CameraMovement)
}

func TestNewIDIsOrderedEnough(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		id := NewID()
		require.NotEqual(t, prev, id)
		// UUIDv7 ids created in sequence sort lexicographically.
		assert.Less(t, prev, id)
		prev = id
	}
}

func TestVisibleScenes(t *testing.T) {
	s := &Session{Scenes: []*Scene{{Hidden: true}, {}, {Hidden: true}}}
	assert.Equal(t, 1, s.VisibleScenes())
}

func TestSavedItemKeyAndExpiry(t *testing.T) {
	now := time.Now()
	item := &SavedItem{SessionID: "sess", SceneID: "scene"}
	assert.Equal(t, "sess-scene", item.Key())
	assert.False(t, item.Expired(now), "zero expiry never expires")

	item.ExpiresAt = now.Add(-time.Minute)
	assert.True(t, item.Expired(now))

	item.ExpiresAt = now.Add(time.Minute)
	assert.False(t, item.Expired(now))
}
