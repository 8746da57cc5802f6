package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateMessageText validates outgoing message text.
func ValidateMessageText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(text) > 10000 {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a thread or request identifier.
func ValidateID(id string) error {
	if len(id) == 0 {
		return errors.New("identifier cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("identifier exceeds maximum length")
	}
	return nil
}

// ValidateReason validates an optional rejection reason.
func ValidateReason(reason string) error {
	if len(reason) > 1000 {
		return errors.New("reason exceeds maximum length")
	}
	if !utf8.ValidString(reason) {
		return errors.New("reason must be valid UTF-8")
	}
	return nil
}
