// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package auth

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Password policy bounds.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128

	// DefaultGeneratedLength is the length used by GenerateRandomPassword
	// when the caller passes a non-positive length.
	DefaultGeneratedLength = 12
)

// Character classes a password must draw from.
const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"
)

// StrengthReport is the result of a password policy check. Errors accumulate;
// a single weak password can violate several rules at once.
type StrengthReport struct {
	IsValid bool
	Errors  []string
}

// CheckStrength evaluates a password against the policy. All rules are
// checked independently; the report lists every violation in rule order.
func CheckStrength(password string) StrengthReport {
	var violations []string

	if password == "" {
		violations = append(violations, "Password is required")
	}
	// Length bounds are in characters, not bytes.
	length := utf8.RuneCountInString(password)
	if length < MinPasswordLength {
		violations = append(violations, "Password must be at least 8 characters long")
	}
	if length > MaxPasswordLength {
		violations = append(violations, "Password must be less than 128 characters long")
	}
	if !strings.ContainsAny(password, lowerChars) {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if !strings.ContainsAny(password, upperChars) {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if !strings.ContainsAny(password, digitChars) {
		violations = append(violations, "Password must contain at least one number")
	}
	if !strings.ContainsAny(password, specialChars) {
		violations = append(violations, "Password must contain at least one special character")
	}

	return StrengthReport{
		IsValid: len(violations) == 0,
		Errors:  violations,
	}
}

// GenerateRandomPassword produces a random password of exactly length
// characters containing at least one character from each class. Non-positive
// lengths use DefaultGeneratedLength; lengths below four are raised to four
// so every class can be represented. The source is crypto/rand throughout.
func GenerateRandomPassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultGeneratedLength
	}
	if length < 4 {
		length = 4
	}

	allChars := lowerChars + upperChars + digitChars + specialChars

	chars := make([]byte, 0, length)
	for _, class := range []string{lowerChars, upperChars, digitChars, specialChars} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomChar(allChars)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates so the guaranteed class characters don't cluster at the front.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, oops.Code("RANDOM_SOURCE_FAILED").
			With("operation", "crypto/rand.Int").
			Wrap(err)
	}
	return int(v.Int64()), nil
}
