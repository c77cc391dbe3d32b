// Package cryptox implements the cryptographic primitives used by the
// authentication core: random token generation, one-way hashing, AEAD
// envelope encryption, and Argon2id password hashing. All secret material
// stored in the database goes through either Hash or Encrypt; plaintext
// secrets only ever travel in cookies.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2s"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ErrCiphertextTooShort is returned by Decrypt when the blob cannot even
// contain a nonce.
var ErrCiphertextTooShort = errors.New("encrypted data too short to contain nonce")

// GenerateToken returns a cryptographically random alphanumeric string of
// exactly length characters. Random bytes outside the largest multiple of
// the alphabet size are redrawn, so every character is uniform across the
// alphabet (no modulo bias).
func GenerateToken(length int) (string, error) {
	// 248 = 4 * 62, the largest multiple of the alphabet size below 256.
	const limit = 248

	var b strings.Builder
	b.Grow(length)
	buf := make([]byte, 64)
	for b.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, c := range buf {
			if c >= limit {
				continue
			}
			b.WriteByte(tokenAlphabet[int(c)%len(tokenAlphabet)])
			if b.Len() == length {
				break
			}
		}
	}
	return b.String(), nil
}

// GenerateKey returns n cryptographically random bytes.
func GenerateKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return key, nil
}

// Hash returns the BLAKE2s-256 digest of value. Session and remember-token
// identifiers are persisted only in this form; the plaintext stays in the
// cookie.
func Hash(value string) []byte {
	sum := blake2s.Sum256([]byte(value))
	return sum[:]
}

const aeadNonceSize = 12

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext with AES-256-GCM under key, using a fresh random
// nonce per call. The nonce is appended to the ciphertext so the result is
// self-contained.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aeadNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(sealed, nonce...), nil
}

// Decrypt opens a blob produced by Encrypt. It fails closed: a blob too
// short to hold a nonce, or one that does not authenticate, yields an error
// and never partial plaintext.
func Decrypt(blob, key []byte) ([]byte, error) {
	if len(blob) < aeadNonceSize {
		return nil, ErrCiphertextTooShort
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	split := len(blob) - aeadNonceSize
	plaintext, err := aead.Open(nil, blob[split:], blob[:split], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// Argon2Params control the cost of password hashing.
type Argon2Params struct {
	Time    uint32
	MemoryK uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params are the argon2id costs used when none are configured.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, MemoryK: 64 * 1024, Threads: 4, SaltLen: 16, KeyLen: 32}
}

// HashPassword derives an Argon2id hash of password with a random salt,
// encodes it in PHC string format, and seals the encoding with Encrypt. The
// result is what gets stored in users.password.
func HashPassword(password string, params Argon2Params, key []byte) ([]byte, error) {
	salt, err := GenerateKey(int(params.SaltLen))
	if err != nil {
		return nil, err
	}
	digest := argon2.IDKey([]byte(password), salt, params.Time, params.MemoryK, params.Threads, params.KeyLen)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.MemoryK, params.Time, params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest))
	return Encrypt([]byte(encoded), key)
}

// VerifyPassword opens the envelope and checks password against the encoded
// hash in constant time. A malformed or foreign hash encoding reports false
// rather than an error; a failure to open the envelope is an error.
func VerifyPassword(password string, envelope, key []byte) (bool, error) {
	encoded, err := Decrypt(envelope, key)
	if err != nil {
		return false, err
	}

	parts := strings.Split(string(encoded), "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return false, nil
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, nil
	}
	var memoryK, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memoryK, &time, &threads); err != nil {
		return false, nil
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, nil
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, nil
	}

	candidate := argon2.IDKey([]byte(password), salt, time, memoryK, threads, uint32(len(digest)))
	return ConstantTimeEquals(candidate, digest), nil
}

// ConstantTimeEquals reports whether a and b are equal without leaking the
// position of the first differing byte. Use it for every comparison between
// a client-supplied secret and a stored one.
func ConstantTimeEquals(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
