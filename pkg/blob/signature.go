package blob

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// Algorithm names a signature digest.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	SHA1   Algorithm = "sha1"
	MD5    Algorithm = "md5"
)

// ParseAlgorithm accepts the names above, case-insensitively and with an
// optional dash ("SHA-256").
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", ""))
	if _, err := a.New(); err != nil {
		return "", err
	}
	return a, nil
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256, "":
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA1:
		return sha1.New(), nil
	case MD5:
		return md5.New(), nil
	}
	return nil, errors.New(errors.ErrCodeConfiguration, "unsupported signature algorithm %q", string(a))
}

// FileSignature returns the lowercase hex digest of the file at path.
func FileSignature(path string, a Algorithm) (string, error) {
	h, err := a.New()
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "open %s", path)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "read %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
