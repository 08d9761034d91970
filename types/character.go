package types

import "time"

// Character is a reusable visual identity referenced by generation params.
type Character struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Image         []byte `json:"image,omitempty"`
	Description   string `json:"description,omitempty"`
	DetectedStyle string `json:"detected_style,omitempty"`

	// Describing is set while an analysis call for this character is in
	// flight, so callers can disable re-submission.
	Describing bool `json:"describing,omitempty"`
}

// SavedItem is a bookmarked snapshot of one scene plus its video state and
// the originating session's parameters.
type SavedItem struct {
	SessionID string           `json:"session_id"`
	SceneID   string           `json:"scene_id"`
	Scene     *Scene           `json:"scene"`
	Video     *VideoState      `json:"video,omitempty"`
	Params    GenerationParams `json:"params"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Key returns the composite id used for idempotent bookmark toggling.
func (s *SavedItem) Key() string {
	return s.SessionID + "-" + s.SceneID
}

// Expired reports whether the item's expiry timestamp has passed.
func (s *SavedItem) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Settings holds user preferences persisted alongside history and bookmarks.
type Settings struct {
	DisplayCurrency string  `json:"display_currency"`
	ConversionRate  float64 `json:"conversion_rate"`
	DefaultStyle    string  `json:"default_style,omitempty"`
	DefaultGenre    string  `json:"default_genre,omitempty"`
}
