package model

// rootBuffer tracks the size of the array a Buffer (or one of its views)
// was carved from, so a Buffer can answer whether it owns that array
// exclusively — the test spec.md's Value Transport applies to decide
// transfer vs copy.
type rootBuffer struct {
	size int
}

// Buffer is a File's byte payload. It behaves like a Node ArrayBuffer view:
// a Buffer created with NewBuffer owns its entire backing array outright: a
// Buffer created with View shares a backing array with the Buffer it was
// carved from.
type Buffer struct {
	data   []byte
	root   *rootBuffer
	viewed bool
}

// NewBuffer wraps data as a Buffer that exclusively owns its backing array.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data, root: &rootBuffer{size: len(data)}}
}

// View returns a Buffer aliasing b's backing array from offset for length
// bytes. The returned Buffer never owns its backing array exclusively, even
// if the view happens to cover it entirely by coincidence of length, because
// spec.md's rule is about shared/sliced storage, not accidental size match.
func (b *Buffer) View(offset, length int) *Buffer {
	return &Buffer{data: b.data[offset : offset+length : offset+length], root: b.root, viewed: true}
}

// Bytes returns the live byte slice. It is invalid to retain this slice
// past a Neuter call.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the number of live bytes.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// OwnsWhole reports whether this Buffer has exclusive ownership of its
// underlying storage — i.e. it was never carved out of a larger shared
// buffer. Only such buffers are eligible for zero-copy transfer.
func (b *Buffer) OwnsWhole() bool {
	if b == nil || b.root == nil {
		return false
	}
	return !b.viewed && len(b.data) == b.root.size
}

// Neuter truncates the buffer to length zero and drops its reference to the
// backing array, simulating the detachment a transferred ArrayBuffer
// undergoes on its originating side.
func (b *Buffer) Neuter() {
	if b == nil {
		return
	}
	b.data = nil
	b.root = nil
}

// Clone returns a Buffer holding an independent copy of the live bytes.
// The clone always exclusively owns its backing array.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	dup := make([]byte, len(b.data))
	copy(dup, b.data)
	return NewBuffer(dup)
}

// Take hands the receiver's backing array to a new Buffer and neuters the
// receiver, implementing the zero-copy ownership handoff spec.md's
// transfer list performs on send. Only call this when OwnsWhole is true.
func (b *Buffer) Take() *Buffer {
	if b == nil {
		return nil
	}
	moved := &Buffer{data: b.data, root: b.root}
	b.Neuter()
	return moved
}
