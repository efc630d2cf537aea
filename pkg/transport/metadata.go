package transport

// CloneMetadata deep-copies a File/Run metadata map, degrading any
// non-clonable value it finds along the way. This is the single entry
// point PrepareFile and PrepareRun use for the `Metadata` field, so the
// clone-or-degrade decision is made consistently everywhere metadata
// crosses the boundary.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneOrDegrade(v)
	}
	return out
}

// PrepareValue clones or degrades an arbitrary value for a channel send —
// used for the optional `data` payload on importFileProcessor/importModule
// requests, which spec.md's value transport rules apply to just like
// metadata.
func PrepareValue(v any) any {
	if v == nil {
		return nil
	}
	return cloneOrDegrade(v)
}

func cloneOrDegrade(v any) any {
	if IsClonable(v) {
		return Clone(v)
	}
	return Clone(Degrade(v))
}
