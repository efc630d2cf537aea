package transport

import "github.com/kilnforge/filepool/pkg/model"

// PrepareRun copies the primitive fields of a Run for transport, omits its
// Log capability (the Executor reinstalls a fresh one bound to the
// originating message id — see pkg/boundarylog), and clones ChangedFiles
// without Contents, per spec.md §4.5.
func PrepareRun(r *model.Run) *model.Run {
	if r == nil {
		return nil
	}
	return &model.Run{
		ID:           r.ID,
		Cwd:          r.Cwd,
		Concurrency:  r.Concurrency,
		Dev:          r.Dev,
		Debug:        r.Debug,
		Full:         r.Full,
		Partial:      r.Partial,
		ChangedFiles: PrepareChangedFiles(r.ChangedFiles),
		Log:          nil,
	}
}
