package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/rogeecn/otpfetch/internal/account"
	"github.com/spf13/cobra"
)

var (
	previewShowPassword bool
	previewJSON         bool
)

var previewCmd = &cobra.Command{
	Use:   "preview [file|-]",
	Short: "Show the redacted first account line",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().BoolVar(&previewShowPassword, "show-password", false, "print the password instead of the mask")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "print the preview as JSON")
}

func runPreview(cmd *cobra.Command, args []string) error {
	text, err := readAccounts(cmd, args)
	if err != nil {
		return err
	}

	preview := account.NewPreview(text, previewShowPassword)
	out := cmd.OutOrStdout()

	if previewJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(preview)
	}

	if !preview.Valid {
		if preview.Warning == "" {
			return fmt.Errorf("no accounts provided")
		}
		fmt.Fprintln(out, preview.Warning)
		return nil
	}

	fmt.Fprintf(out, "Email:     %s\nPassword:  %s\nClient ID: %s\nAccounts:  %d\n",
		preview.Email, preview.Password, preview.ClientID, preview.Lines)
	return nil
}
