package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rogeecn/otpfetch/internal/account"
	"github.com/rogeecn/otpfetch/internal/batch"
	"github.com/rogeecn/otpfetch/internal/failure"
	"github.com/rogeecn/otpfetch/pkg/types"
	"github.com/rs/zerolog"
)

const missingCredentialMessage = "Missing refresh_token or client_id"

type batchResponse struct {
	BatchID string          `json:"batch_id"`
	Summary batch.Summary   `json:"summary"`
	Results []batch.Outcome `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFetchOTPs processes a single account, keeping the response shape the
// operator UI expects: {success, otps} or {success:false, error, details}.
func (s *Server) handleFetchOTPs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", nil)
		return
	}

	var req types.FetchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cred := credentialFromRequest(req)
	if err := cred.Validate(); err != nil {
		zerolog.Ctx(r.Context()).Warn().Interface("account", cred.Redacted()).Msg("fetch request missing credentials")
		writeError(w, http.StatusBadRequest, missingCredentialMessage, failure.MissingCredential, nil)
		return
	}

	out := s.pipeline.ProcessCredential(r.Context(), 0, cred)
	if out.Status == batch.StatusFailure {
		writeError(w, http.StatusInternalServerError, out.Error, out.Kind, out.Details)
		return
	}

	writeJSON(w, http.StatusOK, types.FetchResponse{Success: true, OTPs: out.OTPs})
}

func (s *Server) handleFetchBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", nil)
		return
	}

	var req types.BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if isEmptyBatch(req) {
		writeError(w, http.StatusBadRequest, "lines or accounts are required", "", nil)
		return
	}

	outcomes := s.runBatch(r, req, nil)
	writeJSON(w, http.StatusOK, batchResponse{
		BatchID: w.Header().Get(requestIDHeader),
		Summary: batch.Summarize(outcomes),
		Results: outcomes,
	})
}

// handleFetchBatchStream sends each outcome as an SSE event as soon as its
// account finishes, followed by the summary and [DONE].
func (s *Server) handleFetchBatchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", nil)
		return
	}

	var req types.BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if isEmptyBatch(req) {
		writeError(w, http.StatusBadRequest, "lines or accounts are required", "", nil)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), failure.Internal, nil)
		return
	}

	logger := zerolog.Ctx(r.Context())
	streamOK := true
	outcomes := s.runBatch(r, req, func(out batch.Outcome) {
		if !streamOK {
			return
		}
		if err := sse.WriteJSON("outcome", out); err != nil {
			streamOK = false
			logger.Debug().Err(err).Msg("sse client went away")
		}
	})
	if !streamOK {
		return
	}

	_ = sse.WriteJSON("summary", batch.Summarize(outcomes))
	_ = sse.WriteDone()
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", nil)
		return
	}

	var req types.PreviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, account.NewPreview(req.Text, req.ShowPassword))
}

func (s *Server) runBatch(r *http.Request, req types.BatchRequest, emit func(batch.Outcome)) []batch.Outcome {
	if len(req.Accounts) > 0 {
		creds := make([]account.Credential, 0, len(req.Accounts))
		for _, a := range req.Accounts {
			creds = append(creds, credentialFromRequest(a))
		}
		return s.pipeline.StreamCredentials(r.Context(), creds, emit)
	}
	return s.pipeline.StreamLines(r.Context(), account.SplitLines(req.Lines), emit)
}

func credentialFromRequest(req types.FetchRequest) account.Credential {
	return account.Credential{
		Email:        strings.TrimSpace(req.Email),
		Password:     req.Password,
		RefreshToken: strings.TrimSpace(req.RefreshToken),
		ClientID:     strings.TrimSpace(req.ClientID),
	}
}

func isEmptyBatch(req types.BatchRequest) bool {
	return len(req.Accounts) == 0 && strings.TrimSpace(req.Lines) == ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "", nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body", "", nil)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, statusCode int, message string, kind failure.Kind, details interface{}) {
	writeJSON(w, statusCode, types.ErrorResponse{
		Success: false,
		Error:   message,
		Kind:    string(kind),
		Details: rawDetails(details),
	})
}

// rawDetails embeds JSON provider payloads as-is and everything else as text.
func rawDetails(details interface{}) interface{} {
	text, ok := details.(string)
	if !ok {
		return details
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if json.Valid([]byte(text)) && (strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")) {
		return json.RawMessage(text)
	}
	return text
}

func isBodyTooLarge(err error) bool {
	if err == nil {
		return false
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) && strings.Contains(strings.ToLower(err.Error()), "too large")
}
