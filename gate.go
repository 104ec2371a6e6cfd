// Package gate is the root of the gate module. The runner itself lives
// in internal/gate; this package only carries build metadata.
package gate

// Version is the gate release version. Overridden at link time with
// -ldflags "-X github.com/deixis/gate.Version=...".
var Version = "v0.1.0-dev"
