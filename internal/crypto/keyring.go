// Package crypto holds the versioned keys used to seal secrets that travel
// inside queued payloads, such as e-mail verification tokens.
//
// Tokens are base64(nonce || ciphertext) sealed with XChaCha20-Poly1305.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrUnknownKey means the referenced key version is not loaded. It may
	// appear during a key rotation, so callers should retry later.
	ErrUnknownKey = errors.New("unknown key version")
	// ErrMalformed means the token can never be opened: bad encoding or too short.
	ErrMalformed = errors.New("malformed ciphertext")
	// ErrDecrypt means authentication failed for an otherwise well-formed token.
	ErrDecrypt = errors.New("ciphertext authentication failed")
)

type Keyring struct {
	keys    map[string][]byte
	current string
}

// NewKeyring decodes base64 keys indexed by version. current selects the key
// used by Encrypt; when empty the highest version string is used.
func NewKeyring(encoded map[string]string, current string) (*Keyring, error) {
	k := &Keyring{keys: make(map[string][]byte, len(encoded))}

	for version, enc := range encoded {
		version = strings.TrimSpace(version)
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(enc))
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", version, err)
		}
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key %q: want %d bytes, got %d", version, chacha20poly1305.KeySize, len(key))
		}
		k.keys[version] = key
	}

	if current == "" && len(k.keys) > 0 {
		current = k.Versions()[len(k.keys)-1]
	}
	if current != "" {
		if _, ok := k.keys[current]; !ok {
			return nil, fmt.Errorf("current key %q: %w", current, ErrUnknownKey)
		}
	}
	k.current = current

	return k, nil
}

// Versions lists the loaded key versions in ascending order.
func (k *Keyring) Versions() []string {
	out := make([]string, 0, len(k.keys))
	for v := range k.keys {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

func (k *Keyring) CurrentVersion() string { return k.current }

// Encrypt seals plaintext with the current key and returns the token and the
// key version to store alongside it.
func (k *Keyring) Encrypt(plaintext []byte) (token, version string, err error) {
	key, ok := k.keys[k.current]
	if !ok {
		return "", "", ErrUnknownKey
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), k.current, nil
}

// Decrypt opens a token produced by Encrypt with the key of the given version.
func (k *Keyring) Decrypt(version, token string) ([]byte, error) {
	key, ok := k.keys[version]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", version, ErrUnknownKey)
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
