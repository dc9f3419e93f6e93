package contentkey

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Key identifies an artifact in the cache.
type Key [32]byte

type domainKey [32]byte

var (
	keyDomain = domainKey{
		's', 'l', 'e', 'e', 'v', 'e', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c', 't', '.',
		'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	sourceDomain = domainKey{
		's', 'l', 'e', 'e', 'v', 'e', '.', 's', 'o', 'u', 'r', 'c', 'e', '.',
		'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	payloadDomain = domainKey{
		's', 'l', 'e', 'e', 'v', 'e', '.', 'p', 'a', 'y', 'l', 'o', 'a', 'd', '.',
		'n', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	tokenDomain = domainKey{
		's', 'l', 'e', 'e', 'v', 'e', '.', 'u', 'r', 'l', '.',
		't', 'o', 'k', 'e', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether k was never computed.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Short returns the first 16 hex digits, enough to identify an entry in
// logs and CLI output.
func (k Key) Short() string {
	return k.String()[:16]
}

// ParseKey decodes a 64-digit hex key.
func ParseKey(value string) (Key, error) {
	var key Key
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return key, fmt.Errorf("parse content key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("content key is %d bytes, want %d", len(decoded), len(key))
	}
	copy(key[:], decoded)
	return key, nil
}

// PayloadName returns the file name of the payload stored for key. It is a
// hash of the key rather than the key itself so payload names carry no
// structure a reader could mistake for meaning.
func PayloadName(key Key) string {
	sum := keyedSum(payloadDomain, key[:])
	return hex.EncodeToString(sum[:])
}

// PublicToken returns a short URL-safe token for key under salt. Templates
// name download URLs with it: the token stays stable while both the artifact
// and the salt are unchanged, and a new salt rotates every URL at once.
func PublicToken(key Key, salt string) string {
	hasher := newKeyed(tokenDomain)
	writeField(hasher, key[:])
	writeField(hasher, []byte(salt))
	sum := hasher.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}

func newKeyed(domain domainKey) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(domain[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("contentkey: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func keyedSum(domain domainKey, data []byte) [32]byte {
	hasher := newKeyed(domain)
	hasher.Write(data)
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// writeField frames data with its length so adjacent fields can never be
// shifted into one another.
func writeField(hasher *blake3.Hasher, data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	hasher.Write(prefix[:])
	hasher.Write(data)
}
