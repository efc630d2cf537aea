package model

import "time"

// File is an addressable content unit flowing into a Processor. Files are
// immutable by convention across the Controller/Executor boundary: an
// Executor always receives a detached copy (see pkg/transport).
type File struct {
	Path       string
	Source     *string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
	Metadata   map[string]any
	Contents   *Buffer
}

// FileInfo is the shape a Processor yields. It mirrors File exactly; the
// distinct name matches spec.md's vocabulary for "a produced value
// normalized into a FileInfo" and keeps output values visually distinct
// from inputs at call sites.
type FileInfo struct {
	Path       string
	Source     *string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
	Metadata   map[string]any
	Contents   *Buffer
}

// ToFile converts a FileInfo back into a File, used when a plugin's output
// is fed into a subsequent processing stage.
func (fi FileInfo) ToFile() File {
	return File{
		Path:       fi.Path,
		Source:     fi.Source,
		CreatedAt:  fi.CreatedAt,
		ModifiedAt: fi.ModifiedAt,
		Metadata:   fi.Metadata,
		Contents:   fi.Contents,
	}
}

// ChangeKind tags how a ChangedFile was touched since the last build.
type ChangeKind string

const (
	Created  ChangeKind = "created"
	Modified ChangeKind = "modified"
	Deleted  ChangeKind = "deleted"
)

// ChangedFile is a File-shaped record tagged with a ChangeKind. It never
// carries Contents: change records describe metadata only (spec.md §3).
type ChangedFile struct {
	Path       string
	Source     *string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
	Metadata   map[string]any
	Change     ChangeKind
}
