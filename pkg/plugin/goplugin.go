//go:build !windows

package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	stdplugin "plugin"
	"strings"

	"github.com/kilnforge/filepool/pkg/poolerr"
)

// PluginPathEnv is the environment variable FileResolver searches, colon
// separated, when a moduleId does not resolve relative to cwd — the
// Go-native stand-in for spec.md §4.6's "attempt to resolve as a
// globally-installed package".
const PluginPathEnv = "FILEPOOL_PLUGIN_PATH"

// FileResolver resolves moduleIds to compiled Go plugins (.so files) using
// the standard library's plugin package — the only mechanism the Go
// ecosystem offers for loading independently-compiled code into a running
// process (see SPEC_FULL.md §0 and DESIGN.md for why no third-party
// dependency supersedes it here).
type FileResolver struct {
	// ExtraSearchPaths is consulted after cwd and PluginPathEnv, mainly so
	// tests can point at a fixture directory.
	ExtraSearchPaths []string
}

func (r *FileResolver) Resolve(ctx context.Context, cwd, moduleID string) (*Module, error) {
	path, err := r.locate(cwd, moduleID)
	if err != nil {
		return nil, err
	}

	p, err := stdplugin.Open(path)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.ModuleImportFailed, "failed to open plugin", err)
	}

	if sym, err := p.Lookup("Processor"); err == nil {
		return &Module{Default: sym, Name: moduleID}, nil
	}
	if sym, err := p.Lookup("Factory"); err == nil {
		return &Module{Default: sym, Name: moduleID}, nil
	}
	if sym, err := p.Lookup("Default"); err == nil {
		return &Module{Default: sym, Name: moduleID}, nil
	}
	return nil, poolerr.New(poolerr.ModuleImportFailed,
		fmt.Sprintf("plugin %q exports no Processor, Factory or Default symbol", moduleID))
}

func (r *FileResolver) locate(cwd, moduleID string) (string, error) {
	candidates := []string{filepath.Join(cwd, withSoExt(moduleID))}
	if paths := os.Getenv(PluginPathEnv); paths != "" {
		for _, dir := range strings.Split(paths, string(os.PathListSeparator)) {
			candidates = append(candidates, filepath.Join(dir, withSoExt(moduleID)))
		}
	}
	for _, dir := range r.ExtraSearchPaths {
		candidates = append(candidates, filepath.Join(dir, withSoExt(moduleID)))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", poolerr.New(poolerr.ModuleNotFound, "module not found").
		WithField("moduleId", moduleID)
}

func withSoExt(moduleID string) string {
	if strings.HasSuffix(moduleID, ".so") {
		return moduleID
	}
	return moduleID + ".so"
}
