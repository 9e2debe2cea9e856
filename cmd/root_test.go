package cmd

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func executeForTest(args ...string) (string, error) {
	return executeWithInput(nil, args...)
}

func executeWithInput(in io.Reader, args ...string) (string, error) {
	var buf bytes.Buffer
	if in == nil {
		in = strings.NewReader("")
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	rootCmd.SetArgs(nil)
	return buf.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := executeForTest("--help")
	if err != nil {
		t.Fatalf("help command error: %v", err)
	}
	for _, name := range []string{"serve", "fetch", "preview", "version"} {
		if !strings.Contains(out, name) {
			t.Fatalf("help output missing %s command: %s", name, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeForTest("version")
	if err != nil {
		t.Fatalf("version command error: %v", err)
	}
	if !strings.Contains(out, "otpfetch") {
		t.Fatalf("version output missing binary name: %s", out)
	}
	if !strings.Contains(out, "commit:") {
		t.Fatalf("version output missing commit field: %s", out)
	}
}
