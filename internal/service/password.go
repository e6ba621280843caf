package service

import (
	"crypto/hmac"
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier hashes and checks passwords.
type CredentialVerifier interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// PepperedBcrypt runs bcrypt over HMAC-SHA256(pepper, password).
// The HMAC keeps inputs under bcrypt's 72-byte limit.
type PepperedBcrypt struct {
	pepper string
	cost   int
}

var _ CredentialVerifier = (*PepperedBcrypt)(nil)

// NewPepperedBcrypt uses bcrypt.DefaultCost when cost is out of range.
func NewPepperedBcrypt(pepper string, cost int) *PepperedBcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PepperedBcrypt{pepper: pepper, cost: cost}
}

func (p *PepperedBcrypt) Hash(password string) (string, error) {
	return hashPassword(password, p.pepper, p.cost)
}

func (p *PepperedBcrypt) Verify(password, hash string) bool {
	return checkPasswordHash(password, hash, p.pepper)
}

func applyPepper(password, pepper string) []byte {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(password))
	return mac.Sum(nil)
}

func hashPassword(password, pepper string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(applyPepper(password, pepper), cost)
	return string(bytes), err
}

// checkPasswordHash compares a plain text password (after applying pepper) with a stored hash.
func checkPasswordHash(password, hash, pepper string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), applyPepper(password, pepper)) == nil
}
