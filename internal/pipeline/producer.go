package pipeline

import (
	"bytes"
	"fmt"
	"io"

	"github.com/halvard/vaultcd/internal/repo"
	"github.com/halvard/vaultcd/internal/rollsum"
)

// produce reads src through a fresh Chunker, forwards every buffer and its
// edges to the Writer, and builds the index accumulator from the edges'
// digests. When the accumulator outgrows one chunk's digest width, the
// accumulator no longer fits in a single index entry, so it recurses,
// treating the accumulator itself as the input stream of a new invocation
// at kind Index — this is how a large stream grows a multi-level index
// tree instead of one oversized index chunk.
//
// It returns the final accumulator (0 or 32 bytes at the root) and the Kind
// of the chunks the accumulator's single digest refers to.
func (s *session) produce(src io.Reader, kind repo.Kind) ([]byte, repo.Kind, error) {
	chunker := rollsum.NewChunker(s.params)
	buf := make([]byte, s.bufSize)
	var acc []byte

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			edges := chunker.Input(buf[:n])
			acc = appendDigests(acc, edges)
			if err := s.send(message{
				buf:   append([]byte(nil), buf[:n]...),
				edges: edges,
				kind:  kind,
			}); err != nil {
				return nil, 0, err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, 0, fmt.Errorf("read input: %w", rerr)
		}
	}

	final := chunker.Finish()
	acc = appendDigests(acc, final)
	if err := s.send(message{edges: final, kind: kind}); err != nil {
		return nil, 0, err
	}

	if len(acc) > 32 {
		return s.produce(bytes.NewReader(acc), repo.Index)
	}
	return acc, kind, nil
}

func appendDigests(acc []byte, edges []rollsum.Edge) []byte {
	for _, e := range edges {
		acc = append(acc, e.Digest[:]...)
	}
	return acc
}
