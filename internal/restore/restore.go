// Package restore implements the restore walker: given a root digest, it
// classifies each referenced object as data or index, decrypts it, and
// either emits its bytes or recurses over its 32-byte child digests.
package restore

import (
	"fmt"
	"io"

	"github.com/halvard/vaultcd/internal/repo"
)

// digestSize is the width of a chunk digest and of one index chunk entry.
const digestSize = 32

// Load reconstructs the byte stream named by digest, writing it to w in the
// exact order it was produced at store time (depth-first, left-to-right).
// A nil or empty digest names the zero-byte stream: Load writes nothing and
// returns nil.
func Load(r *repo.Repository, digest []byte, w io.Writer) error {
	if len(digest) == 0 {
		return nil
	}
	if len(digest) != digestSize {
		return fmt.Errorf("root digest must be %d bytes, got %d", digestSize, len(digest))
	}
	var d [digestSize]byte
	copy(d[:], digest)
	return walk(r, d, w)
}

func walk(r *repo.Repository, digest [digestSize]byte, w io.Writer) error {
	kind, err := r.Classify(digest)
	if err != nil {
		return err
	}
	plain, err := r.ReadAndDecrypt(digest, kind)
	if err != nil {
		return err
	}

	if kind == repo.Data {
		_, err := w.Write(plain)
		return err
	}

	if len(plain) == 0 || len(plain)%digestSize != 0 {
		return fmt.Errorf("index chunk %x has invalid length %d", digest, len(plain))
	}
	for ofs := 0; ofs < len(plain); ofs += digestSize {
		var child [digestSize]byte
		copy(child[:], plain[ofs:ofs+digestSize])
		if err := walk(r, child, w); err != nil {
			return err
		}
	}
	return nil
}
