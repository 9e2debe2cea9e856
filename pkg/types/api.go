package types

// FetchRequest is one account as posted by the operator UI.
type FetchRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

// OTPResult is one extracted code with the message it came from.
type OTPResult struct {
	Email      string `json:"email"`
	Code       string `json:"code"`
	Subject    string `json:"subject"`
	Sender     string `json:"sender"`
	ReceivedAt string `json:"receivedAt"`
}

type FetchResponse struct {
	Success bool        `json:"success"`
	OTPs    []OTPResult `json:"otps"`
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Kind    string      `json:"kind,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// BatchRequest carries either pasted text or structured accounts.
type BatchRequest struct {
	Lines    string         `json:"lines,omitempty"`
	Accounts []FetchRequest `json:"accounts,omitempty"`
}

type PreviewRequest struct {
	Text         string `json:"text"`
	ShowPassword bool   `json:"show_password,omitempty"`
}
