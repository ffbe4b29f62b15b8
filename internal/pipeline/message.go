package pipeline

import (
	"github.com/halvard/vaultcd/internal/repo"
	"github.com/halvard/vaultcd/internal/rollsum"
)

// message is what the Producer sends the Writer: either a data buffer with
// the edges discovered in it, or a terminal exit request. Combining both in
// one type (rather than closing the channel) lets the Writer assert that no
// pending buffers remain at exit.
type message struct {
	exit  bool
	buf   []byte
	edges []rollsum.Edge
	kind  repo.Kind
}
