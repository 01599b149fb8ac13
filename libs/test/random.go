// Package test provides utilities for testing. Do not import this into non-test code.
package test

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString return a random alphanumeric string with length 10.
func RandomString() string {
	return RandomStringWithLen(10)
}

// RandomStringWithLen returns a random alphanumeric string with a specified length.
func RandomStringWithLen(length int) string {
	letters := []rune(alphanumeric)
	s := make([]rune, length)
	for i := range s {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		s[i] = letters[n.Int64()]
	}
	return string(s)
}

// RandomInt return a random int up to math.MaxInt32.
func RandomInt() int {
	return RandomIntWithMax(math.MaxInt32)
}

// RandomIntWithMax returns a random int in range [1, max].
func RandomIntWithMax(max int) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	i := n.Int64()
	if i == 0 {
		i = 1
	}
	return int(i)
}

// RandomEmail returns a random lower case email address.
func RandomEmail() string {
	return strings.ToLower(RandomStringWithLen(8)) + "@example.com"
}

// RandomMSISDN returns a random Zambian mobile number in international format.
func RandomMSISDN() string {
	return fmt.Sprintf("26097%07d", RandomIntWithMax(9999999))
}
