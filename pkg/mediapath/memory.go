package mediapath

// SourceKind enumerates where the bytes behind a Path actually live.
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceURL
	SourceMemory
	SourceSharedMemory
	SourceMemorySequence
	SourceZip
	SourceGenerator
)

// MemoryRef carries an in-memory media source: either a single shared
// immutable byte buffer (SourceMemory/SourceSharedMemory) or a vector of
// per-frame buffers for an in-memory sequence (SourceMemorySequence).
// The byte slices are treated as immutable once constructed; callers must
// not mutate a buffer handed to a MemoryRef after construction.
type MemoryRef struct {
	Kind SourceKind

	// Single-buffer case.
	Data []byte

	// Per-frame case, keyed by frame number.
	Frames map[int64][]byte
}

// NewMemoryRef wraps a single immutable byte buffer.
func NewMemoryRef(data []byte) MemoryRef {
	return MemoryRef{Kind: SourceMemory, Data: data}
}

// NewSharedMemoryRef wraps a buffer whose lifetime is externally guaranteed
// (e.g. a pointer into a larger arena) rather than owned by this value.
func NewSharedMemoryRef(data []byte) MemoryRef {
	return MemoryRef{Kind: SourceSharedMemory, Data: data}
}

// NewMemorySequenceRef wraps a set of per-frame buffers.
func NewMemorySequenceRef(frames map[int64][]byte) MemoryRef {
	return MemoryRef{Kind: SourceMemorySequence, Frames: frames}
}

// FrameData returns the bytes for frame n, if present.
func (m MemoryRef) FrameData(n int64) ([]byte, bool) {
	if m.Kind == SourceMemorySequence {
		b, ok := m.Frames[n]
		return b, ok
	}
	if m.Kind == SourceMemory || m.Kind == SourceSharedMemory {
		return m.Data, true
	}
	return nil, false
}

// Source binds a parsed Path to where its bytes actually come from.
type Source struct {
	Path   Path
	Kind   SourceKind
	Memory *MemoryRef // non-nil when Kind is one of the in-memory kinds
}

// NewFileSource builds a Source for a Path that resolves to a real file
// or URL on the filesystem / network.
func NewFileSource(p Path) Source {
	kind := SourceFile
	if p.Protocol != "" && p.Protocol != "file" {
		kind = SourceURL
	}
	return Source{Path: p, Kind: kind}
}

// NewMemorySource builds a Source backed by an in-memory reference.
func NewMemorySource(p Path, ref MemoryRef) Source {
	return Source{Path: p, Kind: ref.Kind, Memory: &ref}
}

// NewGeneratorSource builds a Source for a placeholder clip (solid color,
// countdown leader, slate) that has no backing file at all. GeneratorKind
// names which placeholder pattern to produce; the generator reader plugin
// interprets it.
func NewGeneratorSource(generatorKind string) Source {
	p := Path{Base: generatorKind, Extension: "generator"}
	return Source{Path: p, Kind: SourceGenerator}
}
