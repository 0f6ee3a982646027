// Package credential derives the login handle the management API expects in
// place of a raw username and password.
package credential

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Algorithm names a digest accepted by the login endpoint.
type Algorithm string

// Supported digest algorithms. MD5 is what controllers have always accepted;
// newer firmware also takes SHA-256.
const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
)

const separator = "_"

// Credentials is a username/password pair. It is never persisted.
type Credentials struct {
	Username string
	Password string
}

// ParseAlgorithm maps a configuration value to an Algorithm. The empty
// string selects MD5.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case "", MD5:
		return MD5, nil
	case SHA256:
		return SHA256, nil
	default:
		return "", fmt.Errorf("unknown digest algorithm %q", s)
	}
}

// Digest returns the hex MD5 of "username_password".
func Digest(username, password string) string {
	return DigestWith(MD5, username, password)
}

// DigestWith is Digest with an explicit algorithm. alg is expected to come
// from ParseAlgorithm; anything other than SHA256 hashes with MD5.
func DigestWith(alg Algorithm, username, password string) string {
	var h hash.Hash
	switch alg {
	case SHA256:
		h = sha256.New()
	default:
		h = md5.New()
	}
	h.Write([]byte(username + separator + password))
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the login handle for c.
func (c Credentials) Digest(alg Algorithm) string {
	return DigestWith(alg, c.Username, c.Password)
}
