package account

import "strings"

// PasswordMask is shown instead of the password unless visibility is requested.
const PasswordMask = "••••••••"

const formatWarning = "Invalid format. Expected: email|password|refresh_token|client_id"

// Preview is the redacted view of the first pasted account line.
type Preview struct {
	Valid    bool   `json:"valid"`
	Warning  string `json:"warning,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Lines    int    `json:"lines"`
}

// NewPreview parses only the first non-blank line of text. The password is
// masked with a fixed-length mask unless showPassword is set. An empty input
// yields an invalid preview without a warning.
func NewPreview(text string, showPassword bool) Preview {
	lines := SplitLines(text)
	preview := Preview{Lines: len(lines)}
	if len(lines) == 0 {
		return preview
	}

	cred, err := ParseLine(lines[0])
	if err != nil {
		preview.Warning = formatWarning
		return preview
	}

	preview.Valid = true
	preview.Email = cred.Email
	preview.ClientID = cred.ClientID
	preview.Password = PasswordMask
	if showPassword {
		preview.Password = cred.Password
	}
	if strings.TrimSpace(cred.Password) == "" {
		preview.Password = ""
	}
	return preview
}
