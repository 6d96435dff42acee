package auth

import (
	"github.com/artpar/procgate/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt implements ports.Hasher.
type Bcrypt struct {
	cost  int
	dummy []byte
}

// NewBcrypt creates a bcrypt hasher. Costs outside bcrypt's range fall back
// to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("procgate"), cost)
	return &Bcrypt{cost: cost, dummy: dummy}
}

// Hash generates a bcrypt hash of plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare reports whether plaintext matches hash. A nil hash is compared
// against a dummy so unknown users cost as much as wrong passwords.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	if hash == nil {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)
