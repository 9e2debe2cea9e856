package batch

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rogeecn/otpfetch/internal/account"
	"github.com/rogeecn/otpfetch/internal/failure"
	"github.com/rogeecn/otpfetch/internal/mailbox"
	"github.com/rogeecn/otpfetch/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeExchanger struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, refreshToken, clientID string) (*oauth2.Token, error)
}

func (f *fakeExchanger) Exchange(ctx context.Context, refreshToken, clientID string) (*oauth2.Token, error) {
	f.mu.Lock()
	f.calls = append(f.calls, refreshToken)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, refreshToken, clientID)
	}
	return &oauth2.Token{AccessToken: "access-" + refreshToken}, nil
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeReader struct {
	byToken map[string][]mailbox.Message
	errs    map[string]error
	limits  []int
	mu      sync.Mutex
}

func (f *fakeReader) ListRecent(_ context.Context, token *oauth2.Token, limit int) ([]mailbox.Message, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if err, ok := f.errs[token.AccessToken]; ok {
		return nil, err
	}
	return f.byToken[token.AccessToken], nil
}

func otpMessage(subject, body, at string) mailbox.Message {
	ts, _ := time.Parse(time.RFC3339, at)
	return mailbox.Message{Subject: subject, BodyPreview: body, ReceivedAt: ts, ReceivedAtRaw: at, Sender: "no-reply@acme.test"}
}

func TestProcessLinesEndToEnd(t *testing.T) {
	exchanger := &fakeExchanger{}
	reader := &fakeReader{byToken: map[string][]mailbox.Message{
		"access-rt1": {
			otpMessage("Weekly digest", "Nothing here 123456", "2026-10-16T08:00:00Z"),
			otpMessage("Your login code", "Enter 738204 to continue", "2026-10-16T08:05:00Z"),
		},
	}}
	o := New(exchanger, reader, Options{})

	outcomes := o.ProcessLines(context.Background(), []string{"a@x.com|p1|rt1|cid1"})

	require.Len(t, outcomes, 1)
	got := outcomes[0]
	assert.Equal(t, StatusSuccess, got.Status)
	require.Len(t, got.OTPs, 1)
	assert.Equal(t, "a@x.com", got.OTPs[0].Email)
	assert.Equal(t, "738204", got.OTPs[0].Code)
	assert.Equal(t, "Your login code", got.OTPs[0].Subject)
	assert.Equal(t, "no-reply@acme.test", got.OTPs[0].Sender)
	assert.Equal(t, "2026-10-16T08:05:00Z", got.OTPs[0].ReceivedAt)
	assert.Equal(t, []int{10}, reader.limits)
}

func TestProcessLinesInvalidFormatSkipsNetwork(t *testing.T) {
	exchanger := &fakeExchanger{}
	o := New(exchanger, &fakeReader{}, Options{})

	outcomes := o.ProcessLines(context.Background(), []string{"a@x.com|p1|rt1", "", "   ", "just-text"})

	require.Len(t, outcomes, 2)
	for i, out := range outcomes {
		assert.Equal(t, i, out.Index)
		assert.Equal(t, StatusFailure, out.Status)
		assert.Equal(t, failure.InvalidFormat, out.Kind)
		assert.Equal(t, "Invalid Format", out.Message())
	}
	assert.Equal(t, "a@x.com", outcomes[0].Email)
	assert.Zero(t, exchanger.callCount())
}

func TestProcessLinesIsolation(t *testing.T) {
	exchanger := &fakeExchanger{fn: func(_ context.Context, refreshToken, _ string) (*oauth2.Token, error) {
		if refreshToken == "bad" {
			return nil, failure.New(failure.TokenExpiredOrRevoked, "exchange token", "").WithDetails(`{"error":"invalid_grant"}`)
		}
		return &oauth2.Token{AccessToken: "access-" + refreshToken}, nil
	}}
	reader := &fakeReader{byToken: map[string][]mailbox.Message{
		"access-rt1": {otpMessage("Verify", "code 111111", "2026-10-16T08:00:00Z")},
	}}
	o := New(exchanger, reader, Options{Concurrency: 3})

	outcomes := o.ProcessLines(context.Background(), []string{
		"a@x.com|p|rt1|cid",
		"b@x.com|p|bad|cid",
		"c@x.com|p|rt3|cid",
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusSuccess, outcomes[0].Status)
	assert.Equal(t, StatusFailure, outcomes[1].Status)
	assert.Equal(t, failure.TokenExpiredOrRevoked, outcomes[1].Kind)
	assert.Equal(t, "Refresh Token Expired or Invalid", outcomes[1].Error)
	assert.Equal(t, `{"error":"invalid_grant"}`, outcomes[1].Details)
	assert.Equal(t, StatusEmpty, outcomes[2].Status)
	assert.Equal(t, NoOTPsLabel, outcomes[2].Message())
	assert.Equal(t, Summary{Total: 3, Succeeded: 1, Empty: 1, Failed: 1}, Summarize(outcomes))
}

func TestProcessLinesMailboxFailures(t *testing.T) {
	reader := &fakeReader{errs: map[string]error{
		"access-r1": failure.New(failure.Unauthorized, "list messages", "status=401"),
		"access-r2": failure.New(failure.ProviderError, "list messages", "status=500"),
		"access-r3": failure.New(failure.TransportError, "list messages", "dial"),
	}}
	o := New(&fakeExchanger{}, reader, Options{})

	outcomes := o.ProcessLines(context.Background(), []string{
		"a@x.com|p|r1|cid",
		"b@x.com|p|r2|cid",
		"c@x.com|p|r3|cid",
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, failure.Unauthorized, outcomes[0].Kind)
	assert.Equal(t, failure.ProviderError, outcomes[1].Kind)
	assert.Equal(t, failure.TransportError, outcomes[2].Kind)
}

func TestProcessLinesMissingCredential(t *testing.T) {
	exchanger := &fakeExchanger{}
	o := New(exchanger, &fakeReader{}, Options{})

	outcomes := o.ProcessLines(context.Background(), []string{"a@x.com|p||cid"})

	require.Len(t, outcomes, 1)
	assert.Equal(t, failure.MissingCredential, outcomes[0].Kind)
	assert.Zero(t, exchanger.callCount())
}

func TestProcessLinesPreservesOrderUnderConcurrency(t *testing.T) {
	exchanger := &fakeExchanger{fn: func(_ context.Context, refreshToken, _ string) (*oauth2.Token, error) {
		// Earlier lines finish later.
		if refreshToken == "r0" {
			time.Sleep(30 * time.Millisecond)
		}
		return &oauth2.Token{AccessToken: refreshToken}, nil
	}}
	o := New(exchanger, &fakeReader{}, Options{Concurrency: 4})

	lines := []string{"e0|p|r0|c", "e1|p|r1|c", "e2|p|r2|c", "e3|p|r3|c"}
	var emitted []int
	outcomes := o.StreamLines(context.Background(), lines, func(out Outcome) {
		emitted = append(emitted, out.Index)
	})

	require.Len(t, outcomes, 4)
	for i, out := range outcomes {
		assert.Equal(t, i, out.Index)
		assert.Equal(t, lines[i][:2], out.Email)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, emitted)
}

func TestProcessLinesConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	exchanger := &fakeExchanger{fn: func(_ context.Context, refreshToken, _ string) (*oauth2.Token, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &oauth2.Token{AccessToken: refreshToken}, nil
	}}
	o := New(exchanger, &fakeReader{}, Options{Concurrency: 2})

	lines := make([]string, 8)
	for i := range lines {
		lines[i] = "e|p|r|c"
	}
	o.ProcessLines(context.Background(), lines)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestProcessCredentialTimeoutIsTransportError(t *testing.T) {
	exchanger := &fakeExchanger{fn: func(ctx context.Context, _, _ string) (*oauth2.Token, error) {
		<-ctx.Done()
		return nil, failure.New(failure.TokenExchangeFailed, "exchange token", "aborted")
	}}
	o := New(exchanger, &fakeReader{}, Options{AccountTimeout: 10 * time.Millisecond})

	out := o.ProcessCredential(context.Background(), 0, account.Credential{Email: "a@x.com", RefreshToken: "rt", ClientID: "cid"})

	assert.Equal(t, StatusFailure, out.Status)
	assert.Equal(t, failure.TransportError, out.Kind)
}

func TestProcessCredentialRecoversPanic(t *testing.T) {
	exchanger := &fakeExchanger{fn: func(context.Context, string, string) (*oauth2.Token, error) {
		panic("boom")
	}}
	o := New(exchanger, &fakeReader{}, Options{})

	outcomes := o.ProcessCredentials(context.Background(), []account.Credential{
		{Email: "a@x.com", RefreshToken: "rt", ClientID: "cid"},
	})

	require.Len(t, outcomes, 1)
	assert.Equal(t, failure.Internal, outcomes[0].Kind)
}

func TestCollectSortsNewestFirst(t *testing.T) {
	messages := []mailbox.Message{
		otpMessage("code", "1111", "2026-10-16T08:00:00Z"),
		{Subject: "code", BodyPreview: "2222", ReceivedAtRaw: "garbage", Sender: "x"},
		otpMessage("code", "3333", "2026-10-16T09:00:00Z"),
		otpMessage("newsletter", "4444", "2026-10-16T10:00:00Z"),
	}

	inOrder := Collect("a@x.com", messages, false)
	require.Len(t, inOrder, 3)
	assert.Equal(t, []string{"1111", "2222", "3333"}, codes(inOrder))

	sorted := Collect("a@x.com", messages, true)
	assert.Equal(t, []string{"3333", "1111", "2222"}, codes(sorted))

	latest, ok := Outcome{OTPs: sorted}.Latest()
	assert.True(t, ok)
	assert.Equal(t, "3333", latest.Code)
}

func codes(results []types.OTPResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Code)
	}
	return out
}

func TestProcessLinesMasksUnparseableSecrets(t *testing.T) {
	const secret = "M.C123_BAY.0.U.-SuperSecretRefreshToken"
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	ctx := logger.WithContext(context.Background())

	o := New(&fakeExchanger{}, &fakeReader{}, Options{})
	outcomes := o.ProcessLines(ctx, []string{secret, "a@x.com|hunter22|" + secret + "|cid"})

	require.Len(t, outcomes, 2)
	assert.Equal(t, failure.InvalidFormat, outcomes[0].Kind)
	assert.Equal(t, "M.C1...oken", outcomes[0].Email)
	assert.NotContains(t, buf.String(), secret)
	assert.NotContains(t, buf.String(), "hunter22")
	assert.Contains(t, buf.String(), "account line has invalid format")
}
