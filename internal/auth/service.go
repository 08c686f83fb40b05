package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrInvalidKey = errors.New("invalid api key")

// Service validates static API keys presented as bearer tokens.
type Service struct {
	digests    [][32]byte
	cookieName string
	headerName string
}

// NewService builds a validator for keys. Blank entries are ignored.
func NewService(keys []string) *Service {
	s := &Service{
		cookieName: "api_key",
		headerName: "Authorization",
	}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s.digests = append(s.digests, sha256.Sum256([]byte(k)))
		}
	}
	return s
}

// Enabled reports whether any key is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.digests) > 0
}

// Validate compares key against every configured key in constant time.
func (s *Service) Validate(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	sum := sha256.Sum256([]byte(key))
	match := 0
	for _, d := range s.digests {
		match |= subtle.ConstantTimeCompare(sum[:], d[:])
	}
	if match != 1 {
		return ErrInvalidKey
	}
	return nil
}
