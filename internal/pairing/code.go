package pairing

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// randomCode returns a 6-digit numeric code (100000-999999).
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
