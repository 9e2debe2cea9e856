// Package batch runs the per-account OTP pipeline over a list of accounts.
//
// Every account is processed in isolation: a parse error, a provider error, a
// timeout or even a panic in one account becomes that account's failure
// Outcome and never affects the others. Outcomes are returned in input order
// regardless of the configured concurrency.
package batch

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rogeecn/otpfetch/internal/account"
	"github.com/rogeecn/otpfetch/internal/failure"
	"github.com/rogeecn/otpfetch/internal/mailbox"
	"github.com/rogeecn/otpfetch/internal/metrics"
	"github.com/rogeecn/otpfetch/internal/otp"
	"github.com/rogeecn/otpfetch/pkg/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const defaultAccountTimeout = 30 * time.Second

type TokenExchanger interface {
	Exchange(ctx context.Context, refreshToken, clientID string) (*oauth2.Token, error)
}

type MailboxReader interface {
	ListRecent(ctx context.Context, token *oauth2.Token, limit int) ([]mailbox.Message, error)
}

type Options struct {
	// Concurrency bounds how many accounts are processed at once. Values
	// below 1 mean sequential processing.
	Concurrency int
	// MessageLimit is the number of recent messages scanned per account.
	MessageLimit int
	// AccountTimeout caps one account's pipeline. Zero uses the default,
	// a negative value disables it.
	AccountTimeout time.Duration
	// SortNewestFirst orders each account's OTPs by receivedAt, newest first.
	// Messages without a parseable timestamp keep provider order at the end.
	SortNewestFirst bool
	Metrics         *metrics.Metrics
}

type Orchestrator struct {
	exchanger TokenExchanger
	reader    MailboxReader
	opts      Options
}

func New(exchanger TokenExchanger, reader MailboxReader, opts Options) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = mailbox.DefaultLimit
	}
	if opts.AccountTimeout == 0 {
		opts.AccountTimeout = defaultAccountTimeout
	}

	return &Orchestrator{
		exchanger: exchanger,
		reader:    reader,
		opts:      opts,
	}
}

type job struct {
	line     string
	cred     account.Credential
	parseErr error
}

// ProcessText splits pasted text into lines and processes the non-blank ones.
func (o *Orchestrator) ProcessText(ctx context.Context, text string) []Outcome {
	return o.ProcessLines(ctx, account.SplitLines(text))
}

// ProcessLines processes pipe-delimited account lines. Blank lines are
// skipped, so the result has one Outcome per non-blank line.
func (o *Orchestrator) ProcessLines(ctx context.Context, lines []string) []Outcome {
	return o.StreamLines(ctx, lines, nil)
}

// StreamLines is ProcessLines with emit called as each account finishes.
// emit calls are serialized.
func (o *Orchestrator) StreamLines(ctx context.Context, lines []string, emit func(Outcome)) []Outcome {
	jobs := make([]job, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cred, err := account.ParseLine(line)
		jobs = append(jobs, job{line: line, cred: cred, parseErr: err})
	}
	return o.run(ctx, jobs, emit)
}

// ProcessCredentials processes already structured accounts.
func (o *Orchestrator) ProcessCredentials(ctx context.Context, creds []account.Credential) []Outcome {
	return o.StreamCredentials(ctx, creds, nil)
}

func (o *Orchestrator) StreamCredentials(ctx context.Context, creds []account.Credential, emit func(Outcome)) []Outcome {
	jobs := make([]job, 0, len(creds))
	for _, cred := range creds {
		jobs = append(jobs, job{cred: cred})
	}
	return o.run(ctx, jobs, emit)
}

func (o *Orchestrator) run(ctx context.Context, jobs []job, emit func(Outcome)) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	logger := loggerFrom(ctx)
	start := time.Now()

	var emitMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)

	for i := range jobs {
		g.Go(func() error {
			var out Outcome
			if jobs[i].parseErr != nil {
				out = failureOutcome(i, account.RedactLine(jobs[i].line), jobs[i].parseErr)
				o.opts.Metrics.ObserveOutcome(string(out.Status), string(out.Kind), 0)
				logger.Warn().Int("index", i).Str("line", out.Email).Msg("account line has invalid format")
			} else {
				out = o.ProcessCredential(ctx, i, jobs[i].cred)
			}
			outcomes[i] = out

			if emit != nil {
				emitMu.Lock()
				emit(out)
				emitMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(outcomes)
	logger.Info().
		Int("accounts", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("empty", summary.Empty).
		Int("failed", summary.Failed).
		Int("concurrency", o.opts.Concurrency).
		Dur("duration", time.Since(start)).
		Msg("batch completed")

	return outcomes
}

// ProcessCredential runs the pipeline for one account: token exchange,
// mailbox read, OTP extraction.
func (o *Orchestrator) ProcessCredential(ctx context.Context, index int, cred account.Credential) (out Outcome) {
	logger := loggerFrom(ctx).With().
		Int("index", index).
		Str("email", cred.Email).
		Logger()
	start := time.Now()
	logger.Debug().Interface("account", cred.Redacted()).Msg("processing account")

	defer func() {
		if v := recover(); v != nil {
			out = failureOutcome(index, cred.Label(), failure.Recovered("process account", v))
		}

		o.opts.Metrics.ObserveOutcome(string(out.Status), string(out.Kind), time.Since(start))
		event := logger.Info()
		if out.Status == StatusFailure {
			event = logger.Warn().Str("kind", string(out.Kind)).Str("details", out.Details)
		}
		event.
			Str("status", string(out.Status)).
			Int("otps", len(out.OTPs)).
			Dur("duration", time.Since(start)).
			Msg("account processed")
	}()

	if o.opts.AccountTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.AccountTimeout)
		defer cancel()
	}

	otps, err := o.fetch(ctx, cred)
	if err != nil {
		if ctx.Err() != nil && failure.KindOf(err) != failure.TransportError {
			err = failure.Wrap(failure.TransportError, "process account", errors.Join(ctx.Err(), err))
		}
		return failureOutcome(index, cred.Label(), err)
	}

	o.opts.Metrics.AddOTPs(len(otps))
	return successOutcome(index, cred.Email, otps)
}

func (o *Orchestrator) fetch(ctx context.Context, cred account.Credential) ([]types.OTPResult, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	token, err := o.exchanger.Exchange(ctx, cred.RefreshToken, cred.ClientID)
	if err != nil {
		return nil, err
	}

	messages, err := o.reader.ListRecent(ctx, token, o.opts.MessageLimit)
	if err != nil {
		return nil, err
	}

	return Collect(cred.Email, messages, o.opts.SortNewestFirst), nil
}

// Collect extracts codes from messages in provider order. With newestFirst
// the results are stably sorted by receivedAt, undated messages last.
func Collect(email string, messages []mailbox.Message, newestFirst bool) []types.OTPResult {
	type found struct {
		result types.OTPResult
		at     time.Time
	}

	matches := make([]found, 0, len(messages))
	for _, msg := range messages {
		code, ok := otp.Extract(msg.Subject, msg.BodyPreview)
		if !ok {
			continue
		}
		matches = append(matches, found{
			result: types.OTPResult{
				Email:      email,
				Code:       code,
				Subject:    msg.Subject,
				Sender:     msg.Sender,
				ReceivedAt: msg.ReceivedAtRaw,
			},
			at: msg.ReceivedAt,
		})
	}

	if newestFirst {
		sort.SliceStable(matches, func(i, j int) bool {
			a, b := matches[i].at, matches[j].at
			if a.IsZero() || b.IsZero() {
				return !a.IsZero() && b.IsZero()
			}
			return a.After(b)
		})
	}

	results := make([]types.OTPResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.result)
	}
	return results
}

func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
