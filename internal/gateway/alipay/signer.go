// Package alipay implements the identity verification provider client:
// RSA2 request signing and the three-step certify protocol (initialize,
// certify URL, result query).
package alipay

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"
)

// Signer signs outbound requests with the merchant private key and checks
// provider signatures with the provider public key. RSA2 means SHA256 with
// RSA PKCS#1 v1.5, base64 encoded.
type Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewSigner parses the key material and returns a ready Signer. Malformed
// keys fail here so a bad deployment is caught at startup, not on the
// first verification attempt. The provider public key may be empty when
// response verification is not needed.
func NewSigner(privateKeyMaterial, providerPublicKeyMaterial string) (*Signer, error) {
	privateKey, errPrivate := ParsePrivateKey(privateKeyMaterial)
	if errPrivate != nil {
		return nil, errPrivate
	}

	signer := &Signer{privateKey: privateKey}
	if strings.TrimSpace(providerPublicKeyMaterial) != "" {
		publicKey, errPublic := ParsePublicKey(providerPublicKeyMaterial)
		if errPublic != nil {
			return nil, errPublic
		}
		signer.publicKey = publicKey
	}
	return signer, nil
}

// Sign produces the RSA2 signature over data.
func (s *Signer) Sign(data string) (string, error) {
	digest := sha256.Sum256([]byte(data))
	signature, errSign := rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA256, digest[:])
	if errSign != nil {
		return "", fmt.Errorf("alipay: sign: %w", errSign)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// Verify checks an RSA2 signature against the provider public key. Any
// mismatch, garbage input, or missing public key reports false.
func (s *Signer) Verify(data, signature string) bool {
	if s == nil || s.publicKey == nil {
		return false
	}
	raw, errDecode := base64.StdEncoding.DecodeString(signature)
	if errDecode != nil {
		return false
	}
	digest := sha256.Sum256([]byte(data))
	return rsa.VerifyPKCS1v15(s.publicKey, crypto.SHA256, digest[:], raw) == nil
}

// CanonicalString builds the string to sign: every non-empty parameter
// sorted by name and joined as k=v&k=v. The sign parameter itself must not
// be in params.
func CanonicalString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+params[key])
	}
	return strings.Join(parts, "&")
}

// ParsePrivateKey accepts an RSA private key as PEM or bare base64 DER in
// either PKCS#1 or PKCS#8 form. Keys issued by the provider console are
// commonly distributed as bare base64.
func ParsePrivateKey(material string) (*rsa.PrivateKey, error) {
	der, errDecode := decodeKeyMaterial(material)
	if errDecode != nil {
		return nil, fmt.Errorf("alipay: private key: %w", errDecode)
	}

	if key, errPKCS1 := x509.ParsePKCS1PrivateKey(der); errPKCS1 == nil {
		return key, nil
	}
	parsed, errPKCS8 := x509.ParsePKCS8PrivateKey(der)
	if errPKCS8 != nil {
		return nil, fmt.Errorf("alipay: private key: not PKCS#1 or PKCS#8: %w", errPKCS8)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("alipay: private key: not an RSA key")
	}
	return key, nil
}

// ParsePublicKey accepts an RSA public key as PEM or bare base64 DER in
// either PKIX or PKCS#1 form.
func ParsePublicKey(material string) (*rsa.PublicKey, error) {
	der, errDecode := decodeKeyMaterial(material)
	if errDecode != nil {
		return nil, fmt.Errorf("alipay: public key: %w", errDecode)
	}

	if parsed, errPKIX := x509.ParsePKIXPublicKey(der); errPKIX == nil {
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("alipay: public key: not an RSA key")
		}
		return key, nil
	}
	key, errPKCS1 := x509.ParsePKCS1PublicKey(der)
	if errPKCS1 != nil {
		return nil, fmt.Errorf("alipay: public key: not PKIX or PKCS#1: %w", errPKCS1)
	}
	return key, nil
}

// decodeKeyMaterial turns PEM or bare base64 key material into DER bytes.
func decodeKeyMaterial(material string) ([]byte, error) {
	trimmed := strings.TrimSpace(material)
	if trimmed == "" {
		return nil, fmt.Errorf("empty key material")
	}

	if strings.Contains(trimmed, "-----BEGIN") {
		block, _ := pem.Decode([]byte(trimmed))
		if block == nil {
			return nil, fmt.Errorf("invalid PEM block")
		}
		return block.Bytes, nil
	}

	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, trimmed)
	der, errDecode := base64.StdEncoding.DecodeString(compact)
	if errDecode != nil {
		return nil, fmt.Errorf("invalid base64: %w", errDecode)
	}
	return der, nil
}
