package batch

import (
	"github.com/rogeecn/otpfetch/internal/failure"
	"github.com/rogeecn/otpfetch/pkg/types"
)

type Status string

const (
	StatusSuccess Status = "success"
	// StatusEmpty means the mailbox was read but no message carried a code.
	StatusEmpty   Status = "empty"
	StatusFailure Status = "failure"
)

// NoOTPsLabel is shown for accounts whose mailbox had no matching message.
const NoOTPsLabel = "No OTPs found"

// Outcome is the result of one input line, positioned by Index.
type Outcome struct {
	Index   int               `json:"index"`
	Email   string            `json:"email"`
	Status  Status            `json:"status"`
	OTPs    []types.OTPResult `json:"otps"`
	Kind    failure.Kind      `json:"kind,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details string            `json:"details,omitempty"`
}

func successOutcome(index int, email string, otps []types.OTPResult) Outcome {
	status := StatusSuccess
	if len(otps) == 0 {
		status = StatusEmpty
		otps = []types.OTPResult{}
	}
	return Outcome{Index: index, Email: email, Status: status, OTPs: otps}
}

func failureOutcome(index int, email string, err error) Outcome {
	kind := failure.KindOf(err)
	return Outcome{
		Index:   index,
		Email:   email,
		Status:  StatusFailure,
		OTPs:    []types.OTPResult{},
		Kind:    kind,
		Error:   kind.Label(),
		Details: failure.DetailsOf(err),
	}
}

// Latest returns the first OTP of a successful outcome.
func (o Outcome) Latest() (types.OTPResult, bool) {
	if len(o.OTPs) == 0 {
		return types.OTPResult{}, false
	}
	return o.OTPs[0], true
}

// Message is the short text shown for rows without a code.
func (o Outcome) Message() string {
	switch o.Status {
	case StatusEmpty:
		return NoOTPsLabel
	case StatusFailure:
		return o.Error
	default:
		return ""
	}
}

// Summary counts outcomes by status.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Empty     int `json:"empty"`
	Failed    int `json:"failed"`
}

func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusEmpty:
			s.Empty++
		default:
			s.Failed++
		}
	}
	return s
}
