// Package hashing implements the memory-hard password KDF (C1).
package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params tunes the Argon2id cost parameters. Defaults are conservative for
// an interactive login path; raise Memory/Time as hardware improves.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultParams returns the baseline Argon2id tuning.
func DefaultParams() Params {
	return Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
		SaltLen: 16,
	}
}

// Hasher hashes and verifies plaintext passwords. Verify never returns an
// error to the caller — a malformed or foreign encoding is simply a
// mismatch.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) bool
}

// ArgonHasher implements Hasher using Argon2id.
type ArgonHasher struct {
	params Params
}

// NewArgonHasher builds a hasher with the given parameters.
func NewArgonHasher(params Params) *ArgonHasher {
	return &ArgonHasher{params: params}
}

// Hash derives a fresh random salt and returns a self-describing encoding.
// Two calls on the same plaintext produce distinct encodings because the
// salt is re-rolled every time.
func (h *ArgonHasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("hashing: generate salt: %w", err)
	}

	digest := argon2.IDKey([]byte(plain), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return encoded, nil
}

// Verify re-derives the digest from plain using the parameters embedded in
// encoded and compares in constant time. Any parse failure is a mismatch,
// never a panic or an error return.
func (h *ArgonHasher) Verify(plain, encoded string) bool {
	params, salt, digest, err := decode(encoded)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(plain), salt, params.Time, params.Memory, params.Threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(candidate, digest) == 1
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	// "$argon2id$v=19$m=...,t=...,p=...$salt$hash" splits into
	// ["", "argon2id", "v=19", "m=...,t=...,p=...", "salt", "hash"].
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, fmt.Errorf("hashing: unrecognized encoding")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, fmt.Errorf("hashing: bad version segment: %w", err)
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("hashing: unsupported version %d", version)
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return Params{}, nil, nil, fmt.Errorf("hashing: bad params segment: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("hashing: bad salt encoding: %w", err)
	}

	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("hashing: bad digest encoding: %w", err)
	}

	return p, salt, digest, nil
}
