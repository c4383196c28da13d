package utils

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 6 characters long")
	ErrPasswordTooLong  = errors.New("password must be at most 50 characters long")
	ErrPasswordBlank    = errors.New("password must not be blank")
	ErrPasswordNotHash  = errors.New("stored password is not a bcrypt hash")
)

// ValidatePasswordPolicy checks the length rules of the users list.
func ValidatePasswordPolicy(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordBlank
	}
	n := utf8.RuneCountInString(password)
	if n < 6 {
		return ErrPasswordTooShort
	}
	if n > 50 {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in the Senha column.
func HashPassword(password string) (string, error) {
	if err := ValidatePasswordPolicy(password); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IsPasswordHash reports whether stored looks like a bcrypt hash.
func IsPasswordHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// CheckPassword compares password with a stored bcrypt hash.
func CheckPassword(stored, password string) error {
	if !IsPasswordHash(stored) {
		return ErrPasswordNotHash
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
}
