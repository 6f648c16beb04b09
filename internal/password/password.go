// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor. Tests lower it to bcrypt.MinCost.
var Cost = bcrypt.DefaultCost

var ErrEmpty = errors.New("password is empty")

func Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Matches reports whether plain matches hash. bcrypt compares in constant time.
func Matches(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// Burn runs a comparison against a throwaway hash so that a login for an
// unknown username costs the same as one with a wrong password.
func Burn(plain string) {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), Cost)
		if err == nil {
			dummyHash = string(h)
		}
	})
	_ = Matches(dummyHash, plain)
}
