// Package state provides durable persistence for coordination state that must
// survive power cycles.
//
// The state holds the background user restart registry and the initial user
// selection. It is saved after each registry mutation and restored when the
// service starts.
//
// # Usage
//
// Create a file-based repository:
//
//	repo := state.NewFileRepository("/path/to/state/dir")
//
//	// Load existing state
//	s, err := repo.Load(ctx)
//	if err != nil {
//	    return err
//	}
//
//	// ... mutate ...
//
//	// Save updated state
//	if err := repo.Save(ctx, s); err != nil {
//	    return err
//	}
//
// Writes go through renameio: the file is fsynced and atomically renamed, so
// a power loss leaves either the previous or the new state on disk.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package state
