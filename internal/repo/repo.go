// Package repo implements the on-disk, content-addressed, encrypted chunk
// store: key material, the fan-out path layout, deduplicating writes, and
// decrypting reads. It is the repository-facing half of the storage
// pipeline; internal/pipeline drives it from the producer/writer side, and
// internal/restore drives it from the restore-walker side.
package repo

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"

	"github.com/halvard/vaultcd/internal/logging"
	"github.com/halvard/vaultcd/internal/seal"
)

// Repository is an opened, content-addressed chunk store rooted at a
// directory on disk.
type Repository struct {
	root string
	pub  *[seal.PublicKeySize]byte
	sec  *[seal.SecretKeySize]byte // nil until WithSecretKey is called

	seen   *seenCache
	logger log.Logger
}

// Open loads an existing repository's public key. The secret key is not
// required for Open; load it with LoadSecretKey and attach it with
// WithSecretKey before any restore.
func Open(root string, logger log.Logger) (*Repository, error) {
	pub, err := LoadPublicKey(root)
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", root, err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Repository{root: root, pub: pub, seen: newSeenCache(), logger: logger}, nil
}

// WithSecretKey attaches an already-decoded secret key, for callers (tests,
// the CLI) that load it through repo.LoadSecretKey themselves.
func (r *Repository) WithSecretKey(sec *[seal.SecretKeySize]byte) {
	r.sec = sec
}

// Root returns the repository's root directory.
func (r *Repository) Root() string { return r.root }

// Path computes the on-disk path for digest under kind: a two-level,
// byte-prefix fan-out directory tree, spreading files evenly across
// directories instead of dumping millions of chunks into one.
func (r *Repository) Path(digest [32]byte, kind Kind) string {
	hexDigest := hex.EncodeToString(digest[:])
	return filepath.Join(r.root, kind.dir(), hexDigest[0:2], hexDigest[2:4], hexDigest)
}

// Exists reports whether a chunk is already present, consulting the
// in-memory seen-cache before touching the filesystem.
func (r *Repository) Exists(digest [32]byte, kind Kind) (bool, error) {
	if r.seen.has(kind, digest) {
		return true, nil
	}
	_, err := os.Stat(r.Path(digest, kind))
	switch {
	case err == nil:
		r.seen.add(kind, digest)
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat chunk %x: %w", digest, err)
	}
}

// WriteChunk persists plaintext under digest/kind if not already present,
// skipping the write entirely for content already on disk. The file is
// written to a temporary sibling and renamed into place so a concurrent
// reader never observes a partial object.
func (r *Repository) WriteChunk(digest [32]byte, kind Kind, plaintext []byte) (skipped bool, err error) {
	exists, err := r.Exists(digest, kind)
	if err != nil {
		return false, err
	}
	if exists {
		logging.Debug(r.logger, "msg", "dedup skip", "kind", kind, "digest", hex.EncodeToString(digest[:]))
		return true, nil
	}

	path := r.Path(digest, kind)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create chunk directory: %w", err)
	}

	sealed, err := seal.Seal(plaintext, digest, r.pub)
	if err != nil {
		return false, fmt.Errorf("seal chunk %x: %w", digest, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("create temp chunk file: %w", err)
	}
	if _, err := f.Write(sealed); err != nil {
		f.Close()
		os.Remove(tmp)
		return false, fmt.Errorf("write chunk %x: %w", digest, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return false, fmt.Errorf("sync chunk %x: %w", digest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("close chunk %x: %w", digest, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("publish chunk %x: %w", digest, err)
	}

	r.seen.add(kind, digest)
	logging.Debug(r.logger, "msg", "wrote chunk", "kind", kind, "digest", hex.EncodeToString(digest[:]), "bytes", len(plaintext))
	return false, nil
}

// Classify probes for digest's object under Index, then Data, returning
// whichever kind is found on disk. An unresolved digest is a structural
// failure.
func (r *Repository) Classify(digest [32]byte) (Kind, error) {
	for _, kind := range []Kind{Index, Data} {
		if _, err := os.Stat(r.Path(digest, kind)); err == nil {
			return kind, nil
		} else if !os.IsNotExist(err) {
			return 0, fmt.Errorf("stat chunk %x: %w", digest, err)
		}
	}
	return 0, fmt.Errorf("object not found: %x", digest)
}

// ReadAndDecrypt reads and authenticates the chunk stored at digest/kind,
// returning its plaintext.
func (r *Repository) ReadAndDecrypt(digest [32]byte, kind Kind) ([]byte, error) {
	if r.sec == nil {
		return nil, fmt.Errorf("secret key not loaded")
	}
	raw, err := os.ReadFile(r.Path(digest, kind))
	if err != nil {
		return nil, fmt.Errorf("read chunk %x: %w", digest, err)
	}
	plain, err := seal.Open(raw, digest, r.sec)
	if err != nil {
		return nil, fmt.Errorf("decrypt chunk %x: %w", digest, err)
	}
	return plain, nil
}

// Logger returns the repository's logger, for collaborators (pipeline,
// restore walker) constructed alongside it.
func (r *Repository) Logger() log.Logger { return r.logger }
