// Package switching tracks the single in-flight user switch and negotiates it
// with the external coordinator before committing it to the OS.
//
// A request installs a transaction under the lock and returns a channel that
// receives exactly one SwitchResult. The coordinator round trip runs without
// the lock; its answer is posted as a command to the one switch worker,
// which re-validates that the transaction was not superseded, commits the
// switch to the OS and records the coordinator token. The acknowledgment for
// that token is sent once the target user unlocks.
//
// A request for a different target silently supersedes the in-flight one.
// The superseded caller resolves with AbandonedForNewerRequest when its
// coordinator answer (or timeout) is processed, and no acknowledgment is
// ever sent for its token.
package switching
