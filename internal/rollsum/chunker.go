package rollsum

import (
	"crypto/sha256"
	"hash"
)

// Chunker consumes a byte stream and emits content-defined chunk boundaries.
// A fresh Chunker is created per store operation; it is not safe for
// concurrent use.
type Chunker struct {
	params Params
	win    window
	sha    hash.Hash

	bytesInChunk int
	edges        []Edge
}

// NewChunker creates a Chunker targeting the given parameters.
func NewChunker(p Params) *Chunker {
	return &Chunker{
		params: p,
		win:    newWindow(),
		sha:    sha256.New(),
	}
}

// Input consumes buf and returns every edge whose offset lies within it.
// Offsets are relative to the start of buf. Bytes after the last edge
// accumulate internally and contribute to a later edge or to Finish.
func (c *Chunker) Input(buf []byte) []Edge {
	ofs := 0
	n := len(buf)
	for ofs < n {
		count, found := c.findEdge(buf[ofs:n])
		if found {
			c.sha.Write(buf[ofs : ofs+count])
			ofs += count
			c.bytesInChunk += count
			c.edgeFound(ofs)
		} else {
			c.sha.Write(buf[ofs:n])
			c.bytesInChunk += n - ofs
			break
		}
	}
	return c.drain()
}

// Finish flushes any bytes accumulated since the last edge as a final,
// synthetic edge. It is idempotent: once flushed, further calls return no
// edges.
func (c *Chunker) Finish() []Edge {
	if c.bytesInChunk != 0 {
		c.edgeFound(0)
	}
	return c.drain()
}

// findEdge scans buf byte by byte, rolling the checksum window, and returns
// the offset (relative to buf) of the first declared boundary. If no
// boundary is found, it returns (len(buf), false) having rolled every byte.
func (c *Chunker) findEdge(buf []byte) (int, bool) {
	for i, b := range buf {
		c.win.roll(b)
		if c.win.digest()&c.params.mask == c.params.mask {
			return i + 1, true
		}
	}
	return len(buf), false
}

// edgeFound finalizes the SHA-256 over the current chunk, records an edge,
// and resets chunk-local state for the next one.
func (c *Chunker) edgeFound(bufOfs int) {
	var digest [32]byte
	copy(digest[:], c.sha.Sum(nil))
	c.edges = append(c.edges, Edge{Offset: bufOfs, Digest: digest})

	c.bytesInChunk = 0
	c.sha.Reset()
	c.win = newWindow()
}

func (c *Chunker) drain() []Edge {
	edges := c.edges
	c.edges = nil
	return edges
}
