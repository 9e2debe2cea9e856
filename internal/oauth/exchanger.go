package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rogeecn/otpfetch/internal/failure"
	"github.com/rogeecn/otpfetch/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	DefaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	DefaultScope    = "https://graph.microsoft.com/.default"
)

const opExchange = "exchange token"

// Exchanger trades a refresh token for a short-lived access token. It keeps
// no token state; every call performs exactly one request.
type Exchanger struct {
	httpClient *http.Client
	tokenURL   string
	scope      string
	metrics    *metrics.Metrics
	now        func() time.Time
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func NewExchanger(httpClient *http.Client, tokenURL, scope string, m *metrics.Metrics) *Exchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if strings.TrimSpace(tokenURL) == "" {
		tokenURL = DefaultTokenURL
	}
	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}

	return &Exchanger{
		httpClient: httpClient,
		tokenURL:   tokenURL,
		scope:      scope,
		metrics:    m,
		now:        time.Now,
	}
}

// Exchange performs a refresh_token grant. invalid_grant responses are
// reported as TokenExpiredOrRevoked, every other provider or network failure
// as TokenExchangeFailed (timeouts as TransportError).
func (e *Exchanger) Exchange(ctx context.Context, refreshToken, clientID string) (*oauth2.Token, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	clientID = strings.TrimSpace(clientID)
	if refreshToken == "" || clientID == "" {
		return nil, failure.New(failure.MissingCredential, opExchange, "missing refresh_token or client_id")
	}

	start := time.Now()
	token, err := e.requestToken(ctx, refreshToken, clientID)
	result := "ok"
	if err != nil {
		result = string(failure.KindOf(err))
	}
	e.metrics.ObserveUpstream(metrics.CallTokenExchange, result, time.Since(start))

	return token, err
}

func (e *Exchanger) requestToken(ctx context.Context, refreshToken, clientID string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", e.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, failure.Wrap(failure.TokenExchangeFailed, opExchange, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.TokenExchangeFailed, opExchange, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Wrap(failure.TokenExchangeFailed, opExchange, fmt.Errorf("read response: %w", err))
	}

	var payload tokenResponse
	jsonErr := json.Unmarshal(body, &payload)

	if jsonErr == nil && strings.EqualFold(strings.TrimSpace(payload.Error), "invalid_grant") {
		log.Debug().
			Int("status", resp.StatusCode).
			Str("client_id", clientID).
			Msg("token exchange: refresh token rejected")
		return nil, failure.New(failure.TokenExpiredOrRevoked, opExchange, "").WithDetails(string(body))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, failure.New(failure.TokenExchangeFailed, opExchange, fmt.Sprintf("status=%d", resp.StatusCode)).WithDetails(string(body))
	}
	if jsonErr != nil {
		return nil, failure.Wrap(failure.TokenExchangeFailed, opExchange, fmt.Errorf("parse json: %w", jsonErr)).WithDetails(string(body))
	}
	if strings.TrimSpace(payload.Error) != "" {
		return nil, failure.New(failure.TokenExchangeFailed, opExchange, payload.Error).WithDetails(string(body))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return nil, failure.New(failure.TokenExchangeFailed, opExchange, "missing access_token").WithDetails(string(body))
	}

	token := &oauth2.Token{
		AccessToken:  payload.AccessToken,
		TokenType:    payload.TokenType,
		RefreshToken: payload.RefreshToken,
	}
	if payload.ExpiresIn > 0 {
		token.Expiry = e.now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	if payload.Scope != "" {
		token = token.WithExtra(map[string]interface{}{"scope": payload.Scope})
	}

	return token, nil
}
