package plugin

import (
	"context"

	"github.com/kilnforge/filepool/pkg/poolerr"
)

// MapResolver is an in-memory Resolver keyed by moduleId, used by tests to
// exercise import/resolution logic without building real .so files —
// mirroring the corpus's habit of testing storage-backed code against a
// map-backed fake rather than the real backend.
type MapResolver map[string]*Module

func (m MapResolver) Resolve(ctx context.Context, cwd, moduleID string) (*Module, error) {
	mod, ok := m[moduleID]
	if !ok {
		return nil, poolerr.New(poolerr.ModuleNotFound, "module not found").WithField("moduleId", moduleID)
	}
	return mod, nil
}
