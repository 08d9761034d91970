// Package genai defines the interface boundary to the external generation
// service: image synthesis and editing, video synthesis with continuation
// handles, camera-angle exploration, speech synthesis, transcription, and
// character description.
//
// The actual provider implementations live outside this module; the rest of
// the module consumes these interfaces only. At-least-once attempt with a
// user-visible failure is the delivery contract — callers record errors on
// the affected scene or clip and keep the session usable.
package genai
