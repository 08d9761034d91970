package director

import "github.com/storyflow-ai/storyflow/types"

// Session lifecycle pass-throughs. The store owns the semantics; the
// director adds the persistence flush so every durable mutation reaches
// storage.

// RemoveScene hides the scene, or splices it out when it is an
// angle-derivative and derivativeOnly is set.
func (d *Director) RemoveScene(sessionID string, sceneIndex int, derivativeOnly bool) error {
	if err := d.store.RemoveScene(sessionID, sceneIndex, derivativeOnly); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// ReorderScenes moves a scene and its video state together.
func (d *Director) ReorderScenes(sessionID string, from, to int) error {
	if err := d.store.ReorderScenes(sessionID, from, to); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// CloseSession dismisses the session without destroying any data.
func (d *Director) CloseSession(sessionID string) error {
	if err := d.store.CloseSession(sessionID); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// ReopenSession restores a closed session to its exact prior state.
func (d *Director) ReopenSession(sessionID string) error {
	if err := d.store.ReopenSession(sessionID); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// DeleteSession permanently destroys the session and any open edits on it.
func (d *Director) DeleteSession(sessionID string) error {
	if err := d.store.DeleteSession(sessionID); err != nil {
		return err
	}
	d.mu.Lock()
	for sceneID, es := range d.edits {
		if es.Ref.SessionID == sessionID {
			delete(d.edits, sceneID)
		}
	}
	d.mu.Unlock()
	d.scheduleFlush()
	return nil
}

// SetActiveSession switches the active session pointer.
func (d *Director) SetActiveSession(sessionID string) error {
	if err := d.store.SetActive(sessionID); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}

// SelectClip moves the scene's current-clip pointer.
func (d *Director) SelectClip(ref types.SceneRef, index int) error {
	if err := d.store.SelectClip(ref, index); err != nil {
		return err
	}
	d.scheduleFlush()
	return nil
}
