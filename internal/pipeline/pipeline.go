// Package pipeline implements the two-stage store operation: a Producer
// that drives the content-defined chunker over an input stream and a Writer
// that deduplicates, encrypts, and persists the resulting chunks. The two
// stages run concurrently, connected by a buffered Go channel carrying
// Data/Exit messages, so the Producer can read ahead of the Writer's disk
// I/O by up to writerQueueDepth messages before it blocks.
package pipeline

import (
	"io"

	"github.com/halvard/vaultcd/internal/repo"
	"github.com/halvard/vaultcd/internal/rollsum"
)

// DefaultReadBufferSize is the recommended size of buffers read from the
// input source and handed to the Chunker.
const DefaultReadBufferSize = 16 * 1024

// writerQueueDepth bounds the message channel: enough to let the Producer
// stay ahead of a Writer doing disk I/O without letting a slow Writer build
// up unbounded buffered memory.
const writerQueueDepth = 32

// session holds the state shared by one Store call's Producer and Writer:
// the message channel, the one-shot error channel the Writer uses to abort
// the Producer early, and the chunking parameters.
type session struct {
	msgCh   chan message
	errCh   chan error
	params  rollsum.Params
	bufSize int
}

// send delivers m to the Writer, or returns the Writer's fatal error if one
// has already been reported — unblocking a Producer that would otherwise
// wait forever on a Writer that has stopped receiving.
func (s *session) send(m message) error {
	select {
	case s.msgCh <- m:
		return nil
	case err := <-s.errCh:
		return err
	}
}

// Store chunks src with a fresh Chunker, recursing over its own index
// accumulator as needed, while a concurrently running Writer deduplicates
// and persists every chunk it discovers. It returns the root digest (nil
// for a zero-byte stream) and the Kind of the object that digest names.
func Store(src io.Reader, r *repo.Repository, params rollsum.Params, bufSize int) ([]byte, repo.Kind, error) {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}

	s := &session{
		msgCh:   make(chan message, writerQueueDepth),
		errCh:   make(chan error, 1),
		params:  params,
		bufSize: bufSize,
	}

	done := make(chan struct{})
	go runWriter(s, r, done)

	acc, kind, produceErr := s.produce(src, repo.Data)
	if produceErr != nil {
		// The Writer may still be blocked waiting for a message it will
		// never receive (the failure was on the read side, not reported
		// through errCh); closing the channel unblocks its range loop.
		close(s.msgCh)
		<-done
		return nil, 0, produceErr
	}

	select {
	case s.msgCh <- message{exit: true}:
	case err := <-s.errCh:
		<-done
		return nil, 0, err
	}
	<-done

	select {
	case err := <-s.errCh:
		if err != nil {
			return nil, 0, err
		}
	default:
	}

	if len(acc) == 0 {
		return nil, 0, nil
	}
	return acc, kind, nil
}
