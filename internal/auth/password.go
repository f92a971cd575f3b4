package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost for new hashes. Tests lower it.
var HashCost = bcrypt.DefaultCost

func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		// bcrypt ignores everything past 72 bytes.
		return "", fmt.Errorf("password longer than 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash reports whether password matches the stored hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was made with a different cost than HashCost.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != HashCost
}
