// Package core is the orchestration layer.  It composes the directory,
// transport and dispatcher into complete operational modes and
// provides a builder that selects the right mode for an invocation.
//
// Architecture layers (bottom → top):
//
//	transport  →  action  →  dispatch  →  {distribute, census, monitor}  →  core  →  cmd (CLI)
package core

import "context"

// Mode is one complete fleetctl operation (run, copy, census or
// monitor).  Each mode resolves the fleet itself, so the directory is
// queried afresh on every invocation.
type Mode interface {
	Run(ctx context.Context) error
}
