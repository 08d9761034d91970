// Package types provides the shared data model for the StoryFlow generation
// session store: sessions, scenes, video states, clips, characters, saved
// items, and the structured error taxonomy used across all packages.
//
// types is the lowest-level public package and depends on no other package
// in this module, so every other package can share its contracts without
// import cycles.
package types
