// Package seal implements the per-chunk authenticated encryption envelope:
// a fresh ephemeral keypair per chunk, a nonce derived from the chunk's
// content digest, and a NaCl box sealed to the repository's public key.
package seal

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// PublicKeySize and SecretKeySize are the on-the-wire and on-disk widths of
// repository and ephemeral keys.
const (
	PublicKeySize = 32
	SecretKeySize = 32
	NonceSize     = 24
)

// Nonce derives the AEAD nonce from a chunk's content digest: its first
// NonceSize bytes. Binding the nonce to the plaintext's own digest makes
// nonce reuse across distinct plaintexts negligible without needing a
// counter or random nonce.
func Nonce(digest [32]byte) [NonceSize]byte {
	var n [NonceSize]byte
	copy(n[:], digest[:NonceSize])
	return n
}

// Seal encrypts plaintext for repoPub using a freshly generated ephemeral
// keypair, and returns ephemeralPub || ciphertext — the exact layout of a
// chunk file's contents.
func Seal(plaintext []byte, digest [32]byte, repoPub *[PublicKeySize]byte) ([]byte, error) {
	ephPub, ephSec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral keypair: %w", err)
	}

	nonce := Nonce(digest)
	out := make([]byte, 0, PublicKeySize+len(plaintext)+box.Overhead)
	out = append(out, ephPub[:]...)
	out = box.Seal(out, plaintext, &nonce, repoPub, ephSec)
	return out, nil
}

// Open splits a chunk file's contents into its ephemeral public key and
// ciphertext, reconstructs the nonce from digest, and opens the box against
// repoSec. Authentication failure is reported as an error; it is fatal to
// the caller's restore operation.
func Open(fileContents []byte, digest [32]byte, repoSec *[SecretKeySize]byte) ([]byte, error) {
	if len(fileContents) < PublicKeySize {
		return nil, fmt.Errorf("chunk file too short: %d bytes", len(fileContents))
	}

	var ephPub [PublicKeySize]byte
	copy(ephPub[:], fileContents[:PublicKeySize])
	cipher := fileContents[PublicKeySize:]

	nonce := Nonce(digest)
	plain, ok := box.Open(nil, cipher, &nonce, &ephPub, repoSec)
	if !ok {
		return nil, fmt.Errorf("authentication failed for chunk %x", digest)
	}
	return plain, nil
}
