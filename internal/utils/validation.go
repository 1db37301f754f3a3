package utils

import "strings"

// HasSpecialChar reports whether s contains at least one punctuation character.
func HasSpecialChar(s string) bool {
	specialChars := "!@#$%^&*()_+-=[]{}|;:,.<>?`~"
	for _, char := range s {
		if strings.ContainsRune(specialChars, char) {
			return true
		}
	}
	return false
}

// IsStrongPassword applies the operator password policy.
func IsStrongPassword(s string) bool {
	return len(s) >= 12 && HasSpecialChar(s)
}
