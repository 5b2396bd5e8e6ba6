package crypto

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
)

// CertificateHash returns the SHA-1 hex digest of a DER certificate. This is
// the identity clients see in UserState.hash and the key bans match on.
func CertificateHash(der []byte) string {
	sum := sha1.Sum(der)
	return hex.EncodeToString(sum[:])
}

// PeerCertificateHash hashes the leaf of a TLS peer chain, or returns "" when
// the client presented no certificate
func PeerCertificateHash(chain []*x509.Certificate) string {
	if len(chain) == 0 {
		return ""
	}
	return CertificateHash(chain[0].Raw)
}

// GenerateNonce generates a random nonce
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	_, err := rand.Read(nonce)
	if err != nil {
		return nil, err
	}
	return nonce, nil
}
