package repo

// Kind distinguishes a leaf data chunk from an interior index chunk. The two
// kinds are stored under separate directory trees so that restore can probe
// for an digest's kind purely from path existence.
type Kind int

const (
	// Data chunks hold a substring of the original input stream.
	Data Kind = iota
	// Index chunks hold a concatenation of child digests, each 32 bytes.
	Index
)

// dir returns the top-level directory name for this kind.
func (k Kind) dir() string {
	if k == Index {
		return "index"
	}
	return "chunks"
}

// String implements fmt.Stringer for diagnostic output.
func (k Kind) String() string {
	if k == Index {
		return "index"
	}
	return "data"
}
