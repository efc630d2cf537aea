// Package executor implements the Executor Runtime (spec.md §4.4): the
// dispatch loop that lives on the far side of a Message Channel inside each
// worker goroutine, resolving plugins and running them against files.
package executor

import "github.com/kilnforge/filepool/pkg/model"

// ImportFileProcessorRequest is the importFileProcessor request payload
// (spec.md §6: `importFileProcessor {id, moduleUID, moduleId, cwd, data?}`).
type ImportFileProcessorRequest struct {
	ModuleUID    uint64
	ModuleID     string
	Cwd          string
	Data         any
	DataProvided bool
}

// ImportModuleRequest is the importModule request payload.
type ImportModuleRequest struct {
	ModuleID     string
	Cwd          string
	Data         any
	DataProvided bool
}

// ProcessFileRequest is the processFile request payload.
type ProcessFileRequest struct {
	ModuleUID uint64
	File      *model.File
	Run       *model.Run
}

// FileProcessorImportedReply is the fileProcessorImported reply payload.
type FileProcessorImportedReply struct {
	Name string
}

// FinishedReply is the finished reply payload — always empty.
type FinishedReply struct{}

// FileReply is the file reply payload.
type FileReply struct {
	File *model.FileInfo
}
