// Package vault implements one-way password hashing and verification.
package vault

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MinPasswordLength is the shortest password callers may hash.
const MinPasswordLength = 12

// Argon2id parameters embedded in every record.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLength          = 16
)

var (
	// ErrCrypto indicates an underlying RNG or encoding failure.
	ErrCrypto = errors.New("vault.crypto_failure")
	// ErrMalformedRecord indicates a stored hash record that cannot be parsed.
	ErrMalformedRecord = errors.New("vault.malformed_record")
)

// Hash derives a salted argon2id record in PHC string format. The salt and
// parameters are embedded so Verify needs nothing beyond the record itself.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("vault.hash: %w: %v", ErrCrypto, err)
	}
	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	record := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return record, nil
}

// Verify recomputes the hash under the record's own parameters and compares in
// constant time. A non-matching password returns false, never an error.
func Verify(password string, record string) (bool, error) {
	salt, digest, memory, iterations, threads, parseErr := parseRecord(record)
	if parseErr != nil {
		return false, parseErr
	}
	recomputed := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(recomputed, digest) == 1, nil
}

func parseRecord(record string) (salt []byte, digest []byte, memory uint32, iterations uint32, threads uint8, err error) {
	segments := strings.Split(record, "$")
	if len(segments) != 6 || segments[0] != "" || segments[1] != "argon2id" {
		return nil, nil, 0, 0, 0, fmt.Errorf("vault.parse: %w", ErrMalformedRecord)
	}

	var version int
	if _, scanErr := fmt.Sscanf(segments[2], "v=%d", &version); scanErr != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("vault.parse.version: %w", ErrMalformedRecord)
	}

	memory, iterations, threads, err = parseParameters(segments[3])
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}

	salt, saltErr := base64.RawStdEncoding.DecodeString(segments[4])
	if saltErr != nil || len(salt) == 0 {
		return nil, nil, 0, 0, 0, fmt.Errorf("vault.parse.salt: %w", ErrMalformedRecord)
	}
	digest, digestErr := base64.RawStdEncoding.DecodeString(segments[5])
	if digestErr != nil || len(digest) == 0 {
		return nil, nil, 0, 0, 0, fmt.Errorf("vault.parse.digest: %w", ErrMalformedRecord)
	}
	return salt, digest, memory, iterations, threads, nil
}

func parseParameters(segment string) (memory uint32, iterations uint32, threads uint8, err error) {
	fields := strings.Split(segment, ",")
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("vault.parse.params: %w", ErrMalformedRecord)
	}
	for _, field := range fields {
		name, value, found := strings.Cut(field, "=")
		if !found {
			return 0, 0, 0, fmt.Errorf("vault.parse.params: %w", ErrMalformedRecord)
		}
		parsed, parseErr := strconv.ParseUint(value, 10, 32)
		if parseErr != nil {
			return 0, 0, 0, fmt.Errorf("vault.parse.params: %w", ErrMalformedRecord)
		}
		switch name {
		case "m":
			memory = uint32(parsed)
		case "t":
			iterations = uint32(parsed)
		case "p":
			threads = uint8(parsed)
		default:
			return 0, 0, 0, fmt.Errorf("vault.parse.params: %w", ErrMalformedRecord)
		}
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return 0, 0, 0, fmt.Errorf("vault.parse.params: %w", ErrMalformedRecord)
	}
	return memory, iterations, threads, nil
}
