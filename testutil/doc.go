// Package testutil provides shared test helpers for the storyflow module.
// The mocks subpackage contains configurable fakes for the generation
// service boundary.
package testutil
