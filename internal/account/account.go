package account

import (
	"strings"

	"github.com/rogeecn/otpfetch/internal/failure"
)

// FieldSeparator separates email, password, refresh token and client id.
const FieldSeparator = "|"

const minFields = 4

// Credential is one parsed account line. Password is kept for display only.
type Credential struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

// ParseLine parses `email|password|refresh_token|client_id`. Fields beyond
// the fourth are ignored.
func ParseLine(line string) (Credential, error) {
	parts := strings.Split(strings.TrimSpace(line), FieldSeparator)
	if len(parts) < minFields {
		return Credential{}, failure.New(failure.InvalidFormat, "parse line", "expected email|password|refresh_token|client_id")
	}

	return Credential{
		Email:        strings.TrimSpace(parts[0]),
		Password:     strings.TrimSpace(parts[1]),
		RefreshToken: strings.TrimSpace(parts[2]),
		ClientID:     strings.TrimSpace(parts[3]),
	}, nil
}

// SplitLines returns the non-blank lines of pasted text.
func SplitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Validate reports a MissingCredential failure when the fields needed for the
// token exchange are empty.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.RefreshToken) == "" || strings.TrimSpace(c.ClientID) == "" {
		return failure.New(failure.MissingCredential, "validate credential", "missing refresh_token or client_id")
	}
	return nil
}

// Label is the text used to identify the account in output rows.
func (c Credential) Label() string {
	if c.Email != "" {
		return c.Email
	}
	return MaskToken(c.ClientID)
}

// MaskToken keeps the first and last four characters of long secrets.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactLine returns the email field of a raw line for rows that failed to
// parse. Anything that does not look like an email, including a line without
// separators, is masked since it is often a pasted token.
func RedactLine(line string) string {
	line = strings.TrimSpace(line)
	if idx := strings.Index(line, FieldSeparator); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if strings.Contains(line, "@") {
		return line
	}
	return MaskToken(line)
}

// Redacted returns a copy safe to log: password and refresh token masked.
func (c Credential) Redacted() Credential {
	c.Password = MaskToken(c.Password)
	c.RefreshToken = MaskToken(c.RefreshToken)
	return c
}
