// Package main implements the scrub command for redacting credential
// material from fleet exports before they leave the machine.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/fleetrecon/internal/http"
)

func init() {
	rootCmd.AddCommand(scrubCmd)
}

var scrubCmd = &cobra.Command{
	Use:   "scrub [file]",
	Short: "Redact secrets from a file or stdin",
	Long: `Send a file or stdin through the fleetrecond scrubber and print the
redacted content. Findings are reported on stderr so the cleaned output
can be piped onward.

Examples:
  # Redact an incident export before sharing it
  frc scrub incidents.csv

  # Pipe RMA notes through the scrubber
  cat rma_notes.txt | frc scrub -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScrub,
}

func runScrub(cmd *cobra.Command, args []string) error {
	content, err := scrubInput(args)
	if err != nil {
		return err
	}

	var resp httpapi.ScrubResponse
	req := httpapi.ScrubRequest{Content: string(content)}
	if err := newAPIClient(30*time.Second).postJSON(cmd.Context(), "/api/v1/scrub", req, &resp); err != nil {
		return err
	}

	fmt.Print(resp.Content)
	if resp.FindingsCount > 0 {
		fmt.Fprintf(os.Stderr, "\n[frc] Scrubbed %d secret(s)\n", resp.FindingsCount)
	}
	return nil
}

// scrubInput reads the named file, or stdin when the argument is "-" or
// absent.
func scrubInput(args []string) ([]byte, error) {
	source, read := "stdin", func() ([]byte, error) { return io.ReadAll(os.Stdin) }
	if len(args) == 1 && args[0] != "-" {
		source, read = args[0], func() ([]byte, error) { return os.ReadFile(args[0]) }
	}

	content, err := read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%s is empty, nothing to scrub", source)
	}
	return content, nil
}
