// Package otp decides whether a message plausibly carries a one-time passcode
// and extracts the numeric code.
//
// The heuristic is a keyword filter followed by the
// first 4-8 digit run bounded by word boundaries. Codes with separators
// ("123-456") and runs shorter than 4 or longer than 8 digits are not found.
package otp

import (
	"regexp"
	"strings"
)

// Keywords that mark a message as OTP-relevant, matched case-insensitively.
var Keywords = []string{"code", "verify", "otp", "login", "confirm"}

var codePattern = regexp.MustCompile(`\b\d{4,8}\b`)

// Content joins subject and body the way extraction sees them.
func Content(subject, body string) string {
	return subject + " " + body
}

// Relevant reports whether text contains at least one keyword.
func Relevant(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FindCode returns the first 4-8 digit run in text, ignoring relevance.
func FindCode(text string) (string, bool) {
	code := codePattern.FindString(text)
	return code, code != ""
}

// Extract returns the code carried by a message with the given subject and
// body preview, or false if the message is not relevant or has no code.
func Extract(subject, body string) (string, bool) {
	text := Content(subject, body)
	if !Relevant(text) {
		return "", false
	}
	return FindCode(text)
}
