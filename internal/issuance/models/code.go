package models

import "crypto/rand"

// codeAlphabet avoids visually ambiguous characters (0/O, 1/I/L) so the code
// survives being read aloud or retyped from a printed certificate.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeLength = 10

// NewCertificateCode generates a human-readable certificate code, e.g.
// "CERT-7KQ2MWX9RD". Uniqueness is enforced by the store; at 31^10 the
// collision probability is negligible.
func NewCertificateCode() string {
	buf := make([]byte, codeLength)
	// rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return "CERT-" + string(buf)
}
