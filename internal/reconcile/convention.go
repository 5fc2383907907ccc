package reconcile

import (
	"os"
	"path/filepath"
)

// IdentitySentinel is the file whose presence in the DAO directory opts the
// project into the uniform-identity convention.
const IdentitySentinel = "identity.go"

// UniformIdentity probes the project convention: when the sentinel file
// exists in the DAO directory, every model exposes one generic identity
// accessor and per-wrapper GetById methods are redundant. Probed once per
// run; the result is immutable for the run's duration.
func UniformIdentity(daoDir string) bool {
	info, err := os.Stat(filepath.Join(daoDir, IdentitySentinel))
	return err == nil && !info.IsDir()
}
