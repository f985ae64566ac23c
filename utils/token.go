package utils

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

const (
	accessKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// DefaultAccessKeyLength gives roughly 71 bits of entropy.
	DefaultAccessKeyLength = 12

	fileIDBytes = 16
)

// NewFileID returns a URL-safe random identifier carrying 128 bits of entropy.
func NewFileID() string {
	buf := make([]byte, fileIDBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// NewAccessKey returns a random alphanumeric key of the given length.
// A non-positive length falls back to DefaultAccessKeyLength.
func NewAccessKey(length int) string {
	if length <= 0 {
		length = DefaultAccessKeyLength
	}
	alphabetSize := big.NewInt(int64(len(accessKeyAlphabet)))
	key := make([]byte, length)
	for i := range key {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		key[i] = accessKeyAlphabet[n.Int64()]
	}
	return string(key)
}
