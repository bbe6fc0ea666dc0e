// Package units holds the compiled-in automation tasks droidpanel can
// schedule. Each unit composes opaque driver operations through a session
// lease; the scheduler never looks inside.
//
// Default recurrences here are deployment-neutral; drop a YAML manifest in
// the tasks directory to override them per install.
package units
