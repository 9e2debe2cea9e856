package cmd

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "otpfetch",
	Short:         "Fetch one-time passcodes from Microsoft mailboxes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}
