// Package core provides the shared types of droidpilot: geometry, the error
// taxonomy, task phases, and the collaborator interfaces the agent drives.
package core
