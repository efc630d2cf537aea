// Package plugin implements module resolution and the plugin-loading
// contract (spec.md §4.6): resolving a moduleId to compiled code, loading
// it, and validating that its export is usable as a Processor or Factory.
package plugin

import (
	"context"
	"fmt"

	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/poolerr"
)

// Module is what resolution+import produces: the resolved default export,
// plus its declared name for diagnostics and for the
// `fileProcessorImported` reply's `name` field.
type Module struct {
	// Default is the module's default export: a func(ctx, *model.File,
	// *model.Run) (<-chan model.ProcessResult, error) (a Processor), a
	// func(any) (model.Processor, error) (a Factory), or any other value —
	// resolution does not reject a non-function default, ImportFileProcessor
	// and ImportModule each apply their own validation (spec.md §4.4).
	Default any
	Name    string
}

// Resolver resolves a moduleId (relative to cwd, or as an installed
// package) and imports it. Production code uses FileResolver
// (backed by the standard library's plugin package); tests substitute an
// in-memory Resolver so module resolution can be exercised without
// building real .so files, matching the corpus's habit of testing against
// interfaces with fakes (pkg/common/workers' mockStorageManager is the
// grounding example — see DESIGN.md).
type Resolver interface {
	Resolve(ctx context.Context, cwd, moduleID string) (*Module, error)
}

// Import resolves and loads moduleID, wrapping any resolution or import
// failure with the "Error importing module: <moduleId>" prefix spec.md
// §4.6 requires while preserving the original error's kind and cause.
func Import(ctx context.Context, r Resolver, cwd, moduleID string) (*Module, error) {
	mod, err := r.Resolve(ctx, cwd, moduleID)
	if err != nil {
		return nil, wrapImportError(moduleID, err)
	}
	return mod, nil
}

func wrapImportError(moduleID string, err error) error {
	prefix := fmt.Sprintf("Error importing module: %s", moduleID)
	if pe, ok := err.(*poolerr.Error); ok && pe.Kind == poolerr.ModuleNotFound {
		return poolerr.Wrap(poolerr.ModuleNotFound, prefix, err)
	}
	return poolerr.Wrap(poolerr.ModuleImportFailed, prefix, err)
}

// ResolveProcessor implements the importFileProcessor half of spec.md
// §4.4: if the module's default export is a Processor and no data was
// supplied, it is used directly; if data was supplied, the default export
// must be a Factory, which is invoked with data and must return a
// Processor.
func ResolveProcessor(mod *Module, data any, dataProvided bool) (model.Processor, string, error) {
	if !dataProvided {
		if proc, ok := asProcessor(mod.Default); ok {
			return proc, mod.Name, nil
		}
		return nil, "", poolerr.New(poolerr.InvalidProcessor,
			fmt.Sprintf("The module exported %s", describe(mod.Default)))
	}

	factory, ok := asFactory(mod.Default)
	if !ok {
		return nil, "", poolerr.New(poolerr.InvalidProcessor,
			fmt.Sprintf("The module exported %s, which is not a factory function", describe(mod.Default)))
	}
	proc, err := factory(data)
	if err != nil {
		return nil, "", poolerr.Wrap(poolerr.InvalidProcessor, "factory function failed", err)
	}
	if proc == nil {
		return nil, "", poolerr.New(poolerr.InvalidProcessor, "factory function returned a non-function value")
	}
	return proc, mod.Name, nil
}

// ResolveHook implements the importModule half of spec.md §4.4: if the
// default export is invocable, it is called with data (or with no
// arguments if it takes none); a non-function default is a no-op.
func ResolveHook(mod *Module, data any) error {
	return invokeDefault(mod.Default, data)
}

func asProcessor(v any) (model.Processor, bool) {
	p, ok := v.(model.Processor)
	if ok {
		return p, true
	}
	// A plain func with the same signature (what plugin.Lookup returns for
	// a plugin's exported func declaration, rather than the named type) is
	// also accepted. A pointer, which plugin.Lookup returns for an exported
	// variable, is not accepted.
	if fn, ok := v.(func(context.Context, *model.File, *model.Run) (<-chan model.ProcessResult, error)); ok {
		return model.Processor(fn), true
	}
	return nil, false
}

func asFactory(v any) (model.Factory, bool) {
	if f, ok := v.(model.Factory); ok {
		return f, true
	}
	if fn, ok := v.(func(any) (model.Processor, error)); ok {
		return model.Factory(fn), true
	}
	return nil, false
}

func describe(v any) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%v", v)
}
