package repo

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/box"

	"github.com/halvard/vaultcd/internal/seal"
)

func pubKeyPath(root string) string { return filepath.Join(root, "pub_key") }
func secKeyPath(root string) string { return filepath.Join(root, "sec_key") }

// Init creates a new repository at root: the directory (and its chunks/ and
// index/ fan-out roots) and a freshly generated keypair. The public key is
// written to pub_key; the secret key is only returned for the caller to
// display and is never written to disk, so a save-only deployment never
// needs to hold the decryption secret at rest.
//
// Init fails if the repository already has a pub_key file, with no side
// effects.
func Init(root string) (pubHex, secHex string, err error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", "", fmt.Errorf("create repository directory: %w", err)
	}

	path := pubKeyPath(root)
	if _, err := os.Stat(path); err == nil {
		return "", "", fmt.Errorf("repository already initialized: %s exists", path)
	} else if !os.IsNotExist(err) {
		return "", "", fmt.Errorf("stat %s: %w", path, err)
	}

	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate repository keypair: %w", err)
	}

	pubHex = hex.EncodeToString(pub[:])
	secHex = hex.EncodeToString(sec[:])

	if err := os.WriteFile(path, []byte(pubHex), 0o644); err != nil {
		return "", "", fmt.Errorf("write pub_key: %w", err)
	}

	for _, dir := range []string{"chunks", "index"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return "", "", fmt.Errorf("create %s directory: %w", dir, err)
		}
	}

	return pubHex, secHex, nil
}

// LoadPublicKey reads and decodes pub_key. It must succeed before any save.
func LoadPublicKey(root string) (*[seal.PublicKeySize]byte, error) {
	data, err := os.ReadFile(pubKeyPath(root))
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}
	return decodeKey(data)
}

// LoadSecretKey reads sec_key from disk if present, otherwise prompts the
// given reader (typically stdin) for a hex-encoded key on a single line. It
// must succeed before any load.
func LoadSecretKey(root string, prompt io.Writer, stdin io.Reader) (*[seal.SecretKeySize]byte, error) {
	data, err := os.ReadFile(secKeyPath(root))
	if err == nil {
		return decodeKey(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read sec_key: %w", err)
	}

	if prompt != nil {
		fmt.Fprintln(prompt, "Enter secret key:")
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read secret key from stdin: %w", err)
	}
	return decodeKey([]byte(strings.TrimSpace(line)))
}

func decodeKey(data []byte) (*[32]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode hex key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key has wrong length: got %d bytes, want 32", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
