package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rogeecn/otpfetch/internal/batch"
	"github.com/rogeecn/otpfetch/internal/config"
	"github.com/rogeecn/otpfetch/internal/server"
	"github.com/rogeecn/otpfetch/pkg/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type fetchPipeline interface {
	ProcessText(ctx context.Context, text string) []batch.Outcome
}

var (
	fetchJSON        bool
	fetchAll         bool
	fetchConcurrency int
	fetchLimit       int
)

var newFetchPipeline = func(cfg *config.Config) (fetchPipeline, error) {
	return server.NewPipeline(cfg, nil)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [file|-]",
	Short: "Fetch OTPs for accounts listed one per line (email|password|refresh_token|client_id)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print outcomes as JSON")
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "print every OTP found instead of the latest per account")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "accounts processed at once (default: OTPFETCH_CONCURRENCY)")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "recent messages scanned per account (default: OTPFETCH_MESSAGE_LIMIT)")
}

type fetchReport struct {
	Summary batch.Summary   `json:"summary"`
	Results []batch.Outcome `json:"results"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fetchConcurrency > 0 {
		cfg.Concurrency = fetchConcurrency
	}
	if fetchLimit > 0 {
		cfg.MessageLimit = fetchLimit
	}

	log.Logger = config.InitLogger(cfg.LogLevel, true)

	text, err := readAccounts(cmd, args)
	if err != nil {
		return err
	}

	p, err := newFetchPipeline(cfg)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	ctx := log.Logger.WithContext(cmd.Context())
	outcomes := p.ProcessText(ctx, text)
	if len(outcomes) == 0 {
		return fmt.Errorf("no accounts provided")
	}

	if fetchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(fetchReport{Summary: batch.Summarize(outcomes), Results: outcomes})
	}
	return writeOutcomeTable(cmd.OutOrStdout(), outcomes, fetchAll)
}

func readAccounts(cmd *cobra.Command, args []string) (string, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read accounts: %w", err)
	}
	return string(raw), nil
}

// writeOutcomeTable prints one row per account with its latest OTP, or every
// OTP when all is set. Accounts without a code get a single message row.
func writeOutcomeTable(w io.Writer, outcomes []batch.Outcome, all bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tCODE\tSUBJECT\tSENDER\tRECEIVED")
	for _, out := range outcomes {
		latest, ok := out.Latest()
		if !ok {
			fmt.Fprintf(tw, "%s\t-\t%s\t\t\n", out.Email, out.Message())
			continue
		}

		rows := []types.OTPResult{latest}
		if all {
			rows = out.OTPs
		}
		for _, o := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Email, o.Code, o.Subject, o.Sender, o.ReceivedAt)
		}
	}
	return tw.Flush()
}
