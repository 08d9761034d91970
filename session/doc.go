// Package session implements the generation session store: the aggregate
// root owning every session, scene, and per-scene video state.
//
// The store is the single writer for all creative state. Every mutation
// takes the write lock, operates on the latest state, and keeps the
// scene/video-state parallel lists index-aligned. Readers always receive
// deep-copied snapshots, so no caller can observe a partial update or
// mutate store internals.
//
// Results of asynchronous generation calls are applied through a
// [types.SceneRef] captured at dispatch time: the update lands at the index
// reserved when the request was made, regardless of completion order.
package session
