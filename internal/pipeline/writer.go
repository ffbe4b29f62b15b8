package pipeline

import (
	"fmt"

	"github.com/halvard/vaultcd/internal/logging"
	"github.com/halvard/vaultcd/internal/repo"
)

// runWriter consumes messages until Exit or a fatal error, reporting any
// error back to the Producer over s.errCh before closing done. It is meant
// to run on its own goroutine, one per Store call.
func runWriter(s *session, r *repo.Repository, done chan<- struct{}) {
	defer close(done)
	if err := writeLoop(s, r); err != nil {
		select {
		case s.errCh <- err:
		default:
		}
	}
}

// writeLoop holds a list of pending buffers belonging to a chunk not yet
// closed, and on every edge either discards them (a dedup hit) or
// assembles, encrypts, and persists the chunk they delimit.
func writeLoop(s *session, r *repo.Repository) error {
	var pending [][]byte

	for m := range s.msgCh {
		if m.exit {
			if len(pending) != 0 {
				return fmt.Errorf("writer exit with %d pending buffer(s) unclosed", len(pending))
			}
			return nil
		}

		if len(m.edges) == 0 {
			if len(m.buf) > 0 {
				pending = append(pending, m.buf)
			}
			continue
		}

		prevOfs := 0
		for _, e := range m.edges {
			exists, err := r.Exists(e.Digest, m.kind)
			if err != nil {
				return err
			}
			if exists {
				logging.Debug(r.Logger(), "msg", "dedup skip", "kind", m.kind, "digest", fmt.Sprintf("%x", e.Digest))
				pending = nil
			} else {
				plaintext := assemble(pending, m.buf[prevOfs:e.Offset])
				if _, err := r.WriteChunk(e.Digest, m.kind, plaintext); err != nil {
					return err
				}
				pending = nil
			}
			prevOfs = e.Offset
		}

		if prevOfs < len(m.buf) {
			pending = append(pending, append([]byte(nil), m.buf[prevOfs:]...))
		}
	}
	return nil
}

// assemble concatenates pending, in order, followed by tail — the chunk
// plaintext delimited by the edge that just closed it.
func assemble(pending [][]byte, tail []byte) []byte {
	n := len(tail)
	for _, b := range pending {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range pending {
		out = append(out, b...)
	}
	return append(out, tail...)
}
