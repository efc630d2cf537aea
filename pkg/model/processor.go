package model

import "context"

// ProcessResult is one item produced by a Processor: exactly one of File or
// Err is set, mirroring the "file" / "error" reply kinds on the wire.
type ProcessResult struct {
	File *FileInfo
	Err  error
}

// Processor is the plugin contract (spec.md §6): given a File and the
// current Run, produce zero or more FileInfo values. Go has no native
// notion of a synchronous-or-async iterable, so the channel is the
// idiomatic stand-in for spec.md's "undefined | FileInfo |
// iterable<FileInfo> | async iterable<FileInfo>" — a Processor that yields
// nothing simply closes the channel without sending, one that yields a
// single file sends once, and one streaming asynchronously sends over time
// before closing. The channel must be closed exactly once, by the
// Processor or by whatever adapts it.
type Processor func(ctx context.Context, file *File, run *Run) (<-chan ProcessResult, error)

// Factory builds a Processor from import-time data (spec.md's "factory
// function (data) -> Processor, optionally async").
type Factory func(data any) (Processor, error)

// Single adapts a Processor that produces at most one FileInfo (or none)
// into the channel-based contract.
func Single(fi *FileInfo, err error) <-chan ProcessResult {
	ch := make(chan ProcessResult, 1)
	defer close(ch)
	if err != nil {
		ch <- ProcessResult{Err: err}
		return ch
	}
	if fi != nil {
		ch <- ProcessResult{File: fi}
	}
	return ch
}

// Many adapts a Processor that produces a fixed slice of FileInfo values
// (spec.md's "array" case) into the channel-based contract.
func Many(fis []FileInfo) <-chan ProcessResult {
	ch := make(chan ProcessResult, len(fis))
	for i := range fis {
		fi := fis[i]
		ch <- ProcessResult{File: &fi}
	}
	close(ch)
	return ch
}
