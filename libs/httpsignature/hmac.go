package httpsignature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HMACKey is a symmetric key used for HMAC-SHA256 signing and verification
type HMACKey string

func hmacSign(key HMACKey, message []byte) ([]byte, error) {
	hhash := hmac.New(sha256.New, []byte(key))
	if _, err := hhash.Write(message); err != nil {
		return nil, err
	}
	return hhash.Sum(nil), nil
}

// Sign the message using the hmac key
func (key HMACKey) Sign(message []byte) ([]byte, error) {
	return hmacSign(key, message)
}

// SignHex returns the lowercase hex encoding of the signature over message
func (key HMACKey) SignHex(message []byte) (string, error) {
	sig, err := hmacSign(key, message)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Verify the signature sig for message using the hmac key
func (key HMACKey) Verify(message, sig []byte) (bool, error) {
	hashSum, err := hmacSign(key, message)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(hashSum, sig) == 1, nil
}

// VerifyHex checks a hex encoded signature, an undecodable signature never verifies
func (key HMACKey) VerifyHex(message []byte, sigHex string) (bool, error) {
	if key == "" {
		return false, nil
	}
	sig, err := hex.DecodeString(strings.TrimSpace(strings.ToLower(sigHex)))
	if err != nil || len(sig) == 0 {
		return false, nil
	}
	return key.Verify(message, sig)
}

func (key HMACKey) String() string {
	return "HMACKey(redacted)"
}
