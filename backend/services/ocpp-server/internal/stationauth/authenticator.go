// Package stationauth checks the HTTP Basic credentials stations present when they
// connect. Stations without a stored key are not challenged.
package stationauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized means the station's credentials are missing or wrong.
var ErrUnauthorized = errors.New("stationauth: unauthorized")

// MinKeyLength is the shortest authorization key accepted for hashing.
const MinKeyLength = 16

// Hasher defines key hashing contract.
type Hasher interface {
	Hash(key string) (string, error)
	Compare(hash, key string) error
}

// BcryptHasher implements Hasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt-backed hasher.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash converts a plain authorization key into a hash.
func (h *BcryptHasher) Hash(key string) (string, error) {
	if len(key) < MinKeyLength {
		return "", fmt.Errorf("stationauth: key shorter than %d characters", MinKeyLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare checks if key matches the stored hash.
func (h *BcryptHasher) Compare(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// KeyStore returns the stored key hash of a station, or "" when none is set.
type KeyStore interface {
	AuthKeyHash(ctx context.Context, stationID string) (string, error)
}

// Authenticator verifies station credentials against KeyStore.
type Authenticator struct {
	keys   KeyStore
	hasher Hasher
}

// NewAuthenticator builds Authenticator. A nil hasher uses bcrypt.
func NewAuthenticator(keys KeyStore, hasher Hasher) *Authenticator {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &Authenticator{keys: keys, hasher: hasher}
}

// Authenticate checks the Basic credentials of stationID. The username must equal the
// station id. Lookup failures are returned wrapped and are not ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, stationID, username, key string, present bool) error {
	hash, err := a.keys.AuthKeyHash(ctx, stationID)
	if err != nil {
		return fmt.Errorf("stationauth: lookup key of %s: %w", stationID, err)
	}
	if hash == "" {
		return nil
	}
	if !present || username != stationID {
		return ErrUnauthorized
	}
	if err := a.hasher.Compare(hash, key); err != nil {
		return ErrUnauthorized
	}
	return nil
}
