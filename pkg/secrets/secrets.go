// Package secrets wraps credential hashing so services never touch the
// hashing primitive directly. Swapping cost or algorithm happens here, not in
// call sites.
package secrets

import "golang.org/x/crypto/bcrypt"

// Hash derives a one-way hash of a secret suitable for storage.
func Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare checks a cleartext secret against a stored hash. Returns a non-nil
// error on mismatch; callers translate it into a uniform credentials failure
// without revealing which part failed.
func Compare(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}
