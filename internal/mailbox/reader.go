// Package mailbox reads the most recent messages of an Outlook mailbox
// through the Microsoft Graph messages endpoint.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rogeecn/otpfetch/internal/failure"
	"github.com/rogeecn/otpfetch/internal/metrics"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	DefaultLimit   = 10
	// MaxLimit is the largest page Graph returns for /me/messages.
	MaxLimit = 1000

	UnknownSender = "Unknown"

	selectFields = "subject,bodyPreview,receivedDateTime,from"
	opList       = "list messages"
)

// Message is the projection of a provider message the classifier needs.
type Message struct {
	Subject       string
	BodyPreview   string
	ReceivedAt    time.Time
	ReceivedAtRaw string
	Sender        string
}

type graphMessage struct {
	Subject          string `json:"subject"`
	BodyPreview      string `json:"bodyPreview"`
	ReceivedDateTime string `json:"receivedDateTime"`
	From             *struct {
		EmailAddress *struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
}

type graphMessageList struct {
	Value []graphMessage `json:"value"`
}

// Reader issues one bearer-authenticated listing request per call.
type Reader struct {
	httpClient *http.Client
	baseURL    string
	metrics    *metrics.Metrics
}

func NewReader(httpClient *http.Client, baseURL string, m *metrics.Metrics) *Reader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Reader{
		httpClient: httpClient,
		baseURL:    baseURL,
		metrics:    m,
	}
}

// ListRecent fetches at most limit messages in the order the provider
// returns them. Only one page is read.
func (r *Reader) ListRecent(ctx context.Context, token *oauth2.Token, limit int) ([]Message, error) {
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return nil, failure.New(failure.Unauthorized, opList, "empty access token")
	}

	start := time.Now()
	messages, err := r.list(ctx, token, normalizeLimit(limit))
	result := "ok"
	if err != nil {
		result = string(failure.KindOf(err))
	}
	r.metrics.ObserveUpstream(metrics.CallListMessages, result, time.Since(start))

	return messages, err
}

func (r *Reader) list(ctx context.Context, token *oauth2.Token, limit int) ([]Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.messagesURL(limit), nil)
	if err != nil {
		return nil, failure.Wrap(failure.ProviderError, opList, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.authorizedClient(token).Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.TransportError, opList, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Wrap(failure.TransportError, opList, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, failure.New(failure.Unauthorized, opList, fmt.Sprintf("status=%d", resp.StatusCode)).WithDetails(string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, failure.New(failure.ProviderError, opList, fmt.Sprintf("status=%d", resp.StatusCode)).WithDetails(string(body))
	}

	var payload graphMessageList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, failure.Wrap(failure.ProviderError, opList, fmt.Errorf("parse json: %w", err)).WithDetails(string(body))
	}

	messages := make([]Message, 0, len(payload.Value))
	for _, gm := range payload.Value {
		messages = append(messages, gm.toMessage())
	}
	return messages, nil
}

// authorizedClient wraps the shared client's transport so the bearer header
// comes from the per-account token. The token is never stored on r.
func (r *Reader) authorizedClient(token *oauth2.Token) *http.Client {
	base := r.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   base,
		},
		Timeout:       r.httpClient.Timeout,
		CheckRedirect: r.httpClient.CheckRedirect,
		Jar:           r.httpClient.Jar,
	}
}

func (r *Reader) messagesURL(limit int) string {
	q := url.Values{}
	q.Set("$top", strconv.Itoa(limit))
	q.Set("$select", selectFields)
	return r.baseURL + "/me/messages?" + q.Encode()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (g graphMessage) toMessage() Message {
	msg := Message{
		Subject:       g.Subject,
		BodyPreview:   g.BodyPreview,
		ReceivedAtRaw: g.ReceivedDateTime,
		Sender:        UnknownSender,
	}
	if g.From != nil && g.From.EmailAddress != nil && strings.TrimSpace(g.From.EmailAddress.Address) != "" {
		msg.Sender = g.From.EmailAddress.Address
	}
	if ts, err := time.Parse(time.RFC3339, g.ReceivedDateTime); err == nil {
		msg.ReceivedAt = ts.UTC()
	}
	return msg
}
