// Package crypto provides the stateful AES-128-CBC cipher and 32-bit
// Diffie-Hellman key agreement used by the hub session handshake.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"fmt"
)

const blockSize = 16

// SessionCipher is a pair of stateful AES-128-CBC block modes: one for the
// bytes this side sends, one for the bytes this side receives. The IV of
// each side advances independently as ciphertext blocks are produced or
// consumed, matching the chained behaviour of cipher.BlockMode.
//
// A SessionCipher must not be shared between goroutines: every hub session
// owns exactly one, and encrypt/decrypt calls must be serialized the same
// way the socket reads/writes are.
type SessionCipher struct {
	encrypter cipher.BlockMode
	decrypter cipher.BlockMode
}

// DeriveKeyIV turns the raw Diffie-Hellman shared secret into the AES key
// and initial IV: key = MD5(shared), iv = MD5(key).
func DeriveKeyIV(shared []byte) (key, iv [16]byte) {
	key = md5.Sum(shared)
	iv = md5.Sum(key[:])
	return key, iv
}

// NewSessionCipher builds a SessionCipher from a key/iv pair derived by
// DeriveKeyIV. Encrypt and decrypt directions get independent copies of the
// IV so that one direction's traffic never perturbs the other's chain.
func NewSessionCipher(key, iv [16]byte) (*SessionCipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to init aes block cipher: %w", err)
	}

	return &SessionCipher{
		encrypter: cipher.NewCBCEncrypter(block, iv[:]),
		decrypter: cipher.NewCBCDecrypter(block, iv[:]),
	}, nil
}

// Encrypt zero-pads plaintext to a 16-byte boundary and encrypts it in
// place, advancing the encrypt-side IV. The returned slice is a new
// allocation; plaintext is not modified.
func (c *SessionCipher) Encrypt(plaintext []byte) []byte {
	buf := padZero(plaintext)
	c.encrypter.CryptBlocks(buf, buf)
	return buf
}

// Decrypt decrypts ciphertext in place, advancing the decrypt-side IV.
// ciphertext must be a multiple of the block size; the caller is
// responsible for trimming trailing zero padding from the result if the
// payload is textual (e.g. JSON, which never legitimately ends in NUL).
func (c *SessionCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d is not a multiple of %d", len(ciphertext), blockSize)
	}

	buf := make([]byte, len(ciphertext))
	copy(buf, ciphertext)
	c.decrypter.CryptBlocks(buf, buf)
	return buf, nil
}

func padZero(plaintext []byte) []byte {
	pad := blockSize - len(plaintext)%blockSize
	if pad == blockSize {
		pad = 0
	}

	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	return buf
}

// GlobalCipher builds the single-shot cipher used by the user/token manager
// to wrap authorization codes and bearer tokens, keyed by the OAuth client
// secret rather than a per-session DH shared secret. Unlike SessionCipher it
// is stateless from the caller's point of view: every call derives a fresh
// BlockMode from the same key/iv, because each value the manager encrypts
// or decrypts is independent and single-block-aligned.
type GlobalCipher struct {
	block cipher.Block
	iv    [16]byte
}

// NewGlobalCipher derives key = secret, iv = MD5(secret) and builds a
// GlobalCipher around it. secret must be exactly 16 bytes (AES-128).
func NewGlobalCipher(secret []byte) (*GlobalCipher, error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to init global cipher: %w", err)
	}

	return &GlobalCipher{block: block, iv: md5.Sum(secret)}, nil
}

// Encrypt zero-pads and encrypts a value (e.g. a 32-byte token) with a
// fresh CBC chain seeded at the fixed global IV.
func (g *GlobalCipher) Encrypt(plaintext []byte) []byte {
	buf := padZero(plaintext)
	mode := cipher.NewCBCEncrypter(g.block, g.iv[:])
	mode.CryptBlocks(buf, buf)
	return buf
}

// Decrypt reverses Encrypt. The result may carry trailing zero padding.
func (g *GlobalCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d is not a multiple of %d", len(ciphertext), blockSize)
	}

	buf := make([]byte, len(ciphertext))
	copy(buf, ciphertext)
	mode := cipher.NewCBCDecrypter(g.block, g.iv[:])
	mode.CryptBlocks(buf, buf)
	return buf, nil
}
