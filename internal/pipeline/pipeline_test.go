package pipeline

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/halvard/vaultcd/internal/repo"
	"github.com/halvard/vaultcd/internal/restore"
	"github.com/halvard/vaultcd/internal/rollsum"
)

func openTestRepo(t *testing.T) *repo.Repository {
	t.Helper()
	root := t.TempDir()
	_, secHex, err := repo.Init(root)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	r, err := repo.Open(root, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	secRaw, err := hex.DecodeString(secHex)
	if err != nil {
		t.Fatalf("decode secret key: %v", err)
	}
	var sec [32]byte
	copy(sec[:], secRaw)
	r.WithSecretKey(&sec)
	return r
}

func roundTrip(t *testing.T, data []byte) (root *repo.Repository, digest []byte) {
	t.Helper()
	root = openTestRepo(t)

	digest, _, err := Store(bytes.NewReader(data), root, rollsum.NewParams(rollsum.DefaultBits), 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	var out bytes.Buffer
	if err := restore.Load(root, digest, &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", out.Len(), len(data))
	}
	return root, digest
}

// TestStore_ZeroByte verifies that an empty stream stores to a nil/empty
// root digest and restores to zero bytes.
func TestStore_ZeroByte(t *testing.T) {
	_, digest := roundTrip(t, nil)
	if len(digest) != 0 {
		t.Errorf("expected empty root digest for zero-byte input, got %x", digest)
	}
}

// TestStore_SingleChunk verifies that an input under one average chunk size
// stores as a single data chunk, with the root digest naming it directly.
func TestStore_SingleChunk(t *testing.T) {
	_, digest := roundTrip(t, []byte("hello world"))
	if len(digest) != 32 {
		t.Fatalf("expected a 32-byte root digest, got %d bytes", len(digest))
	}
}

// TestStore_MultiLevelIndex verifies that a large, incompressible stream
// requires more chunks than fit in one index entry, producing at least one
// on-disk index object.
func TestStore_MultiLevelIndex(t *testing.T) {
	data := make([]byte, 4*1024*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("generate random data: %v", err)
	}

	r, digest := roundTrip(t, data)
	if len(digest) != 32 {
		t.Fatalf("expected a 32-byte root digest, got %d bytes", len(digest))
	}

	matches, err := filepath.Glob(filepath.Join(r.Root(), "index", "*", "*", "*"))
	if err != nil {
		t.Fatalf("glob index dir: %v", err)
	}
	if len(matches) == 0 {
		t.Error("expected at least one index chunk on disk for a multi-MB stream")
	}
}

// TestStore_Deduplicates verifies that storing identical content twice
// returns the same root digest and writes no new chunk files.
func TestStore_Deduplicates(t *testing.T) {
	r := openTestRepo(t)
	data := testStream(1024 * 1024)

	first, _, err := Store(bytes.NewReader(data), r, rollsum.NewParams(rollsum.DefaultBits), 0)
	if err != nil {
		t.Fatalf("first Store: %v", err)
	}
	before := countFiles(t, r.Root())

	second, _, err := Store(bytes.NewReader(data), r, rollsum.NewParams(rollsum.DefaultBits), 0)
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}
	after := countFiles(t, r.Root())

	if !bytes.Equal(first, second) {
		t.Errorf("root digest changed between identical stores: %x vs %x", first, second)
	}
	if before != after {
		t.Errorf("file count changed on duplicate store: %d -> %d", before, after)
	}
}

// TestStore_SharedPrefix verifies that two streams sharing a long common
// prefix share their overlapping chunks on disk.
func TestStore_SharedPrefix(t *testing.T) {
	r := openTestRepo(t)
	prefix := testStream(1024 * 1024)

	a := append(append([]byte(nil), prefix...), []byte("tail A")...)
	b := append(append([]byte(nil), prefix...), []byte("tail B")...)

	if _, _, err := Store(bytes.NewReader(a), r, rollsum.NewParams(rollsum.DefaultBits), 0); err != nil {
		t.Fatalf("Store a: %v", err)
	}
	afterA := countFiles(t, r.Root())

	if _, _, err := Store(bytes.NewReader(b), r, rollsum.NewParams(rollsum.DefaultBits), 0); err != nil {
		t.Fatalf("Store b: %v", err)
	}
	afterB := countFiles(t, r.Root())

	if afterB <= afterA {
		t.Errorf("expected new chunk files for the differing tail, got %d -> %d", afterA, afterB)
	}
	// Far fewer new files than a second independent stream of similar size
	// would need, since the shared prefix's chunks are reused.
	if afterB-afterA >= afterA {
		t.Errorf("too many new files for a shared-prefix store: %d new vs %d existing", afterB-afterA, afterA)
	}
}

// TestStore_OnDiskInvariants decrypts every object a multi-level store left
// on disk and checks that each plaintext hashes to the digest in its path,
// and that every index object's length is a positive multiple of 32.
func TestStore_OnDiskInvariants(t *testing.T) {
	r, _ := roundTrip(t, testStream(2*1024*1024))

	for _, kind := range []repo.Kind{repo.Data, repo.Index} {
		dir := "chunks"
		if kind == repo.Index {
			dir = "index"
		}
		matches, err := filepath.Glob(filepath.Join(r.Root(), dir, "*", "*", "*"))
		if err != nil {
			t.Fatalf("glob %s: %v", dir, err)
		}
		if len(matches) == 0 {
			t.Fatalf("expected objects under %s/", dir)
		}
		for _, path := range matches {
			raw, err := hex.DecodeString(filepath.Base(path))
			if err != nil || len(raw) != 32 {
				t.Fatalf("object %s has a malformed digest name", path)
			}
			var digest [32]byte
			copy(digest[:], raw)

			plain, err := r.ReadAndDecrypt(digest, kind)
			if err != nil {
				t.Fatalf("decrypt %s: %v", path, err)
			}
			if sha256.Sum256(plain) != digest {
				t.Errorf("object %s: plaintext does not hash to its path digest", path)
			}
			if kind == repo.Index && (len(plain) == 0 || len(plain)%32 != 0) {
				t.Errorf("index object %s has invalid length %d", path, len(plain))
			}
		}
	}
}

// testStream builds deterministic, boundary-rich input by chaining SHA-256
// blocks, so dedup and prefix-sharing tests exercise real chunk boundaries
// rather than one giant tail chunk.
func testStream(n int) []byte {
	out := make([]byte, 0, n+32)
	block := sha256.Sum256([]byte("vaultcd test data"))
	for len(out) < n {
		block = sha256.Sum256(block[:])
		out = append(out, block[:]...)
	}
	return out[:n]
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	for _, dir := range []string{"chunks", "index"} {
		matches, err := filepath.Glob(filepath.Join(root, dir, "*", "*", "*"))
		if err != nil {
			t.Fatalf("glob %s: %v", dir, err)
		}
		n += len(matches)
	}
	return n
}
