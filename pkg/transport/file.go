package transport

import "github.com/kilnforge/filepool/pkg/model"

// PrepareFile produces the outgoing representation of f for a channel
// send, and reports whether f's buffer was transferred (moved by
// ownership) rather than copied. Per spec.md §4.5: a File's byte buffer is
// transferred when it has exclusive ownership of its underlying storage;
// otherwise it is copied, and the caller's file (and buffer) are left
// untouched.
func PrepareFile(f *model.File) (wire *model.File, transferred bool) {
	if f == nil {
		return nil, false
	}
	wire = &model.File{
		Path:       f.Path,
		Source:     cloneStringPtr(f.Source),
		CreatedAt:  clonePtr(f.CreatedAt),
		ModifiedAt: clonePtr(f.ModifiedAt),
		Metadata:   CloneMetadata(f.Metadata),
	}
	if f.Contents == nil {
		return wire, false
	}
	if f.Contents.OwnsWhole() {
		wire.Contents = f.Contents.Take()
		return wire, true
	}
	wire.Contents = f.Contents.Clone()
	return wire, false
}

// PrepareFileInfo mirrors PrepareFile for the Executor -> Controller
// direction, where a plugin's yielded FileInfo crosses back over the
// channel as a `file` reply.
func PrepareFileInfo(fi *model.FileInfo) (wire *model.FileInfo, transferred bool) {
	if fi == nil {
		return nil, false
	}
	wire = &model.FileInfo{
		Path:       fi.Path,
		Source:     cloneStringPtr(fi.Source),
		CreatedAt:  clonePtr(fi.CreatedAt),
		ModifiedAt: clonePtr(fi.ModifiedAt),
		Metadata:   CloneMetadata(fi.Metadata),
	}
	if fi.Contents == nil {
		return wire, false
	}
	if fi.Contents.OwnsWhole() {
		wire.Contents = fi.Contents.Take()
		return wire, true
	}
	wire.Contents = fi.Contents.Clone()
	return wire, false
}

// PrepareChangedFiles clones a slice of ChangedFile records. ChangedFile
// never carries Contents, so there is never a transfer decision to make.
func PrepareChangedFiles(cf []model.ChangedFile) []model.ChangedFile {
	if cf == nil {
		return nil
	}
	out := make([]model.ChangedFile, len(cf))
	for i, c := range cf {
		out[i] = model.ChangedFile{
			Path:       c.Path,
			Source:     cloneStringPtr(c.Source),
			CreatedAt:  clonePtr(c.CreatedAt),
			ModifiedAt: clonePtr(c.ModifiedAt),
			Metadata:   CloneMetadata(c.Metadata),
			Change:     c.Change,
		}
	}
	return out
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clonePtr[T any](t *T) *T {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
