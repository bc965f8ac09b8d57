package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/matsen/revharvest/internal/corpus"
	"github.com/matsen/revharvest/internal/persist"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	if logRun != nil {
		logRun.Close()
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	Count  int    `json:"count"`
}

// HarvestResult is the response for the harvesting commands.
type HarvestResult struct {
	RunID     string         `json:"run_id"`
	Publisher string         `json:"publisher"`
	Root      string         `json:"root"`
	Summary   corpus.Summary `json:"summary"`
	Files     persist.Counts `json:"files"`
}

// reportHarvest prints the result of a pass and exits with ExitInterrupted when the
// pass was cut short.
func reportHarvest(res HarvestResult) {
	if humanOutput {
		s, f := res.Summary, res.Files
		outputHuman("%s: %d items, %d processed, %d reviewed, %d skipped, %d errors\n",
			res.Publisher, s.Items, s.Processed, s.Reviewed, s.Skipped, s.Errors)
		outputHuman("files: %d written, %d overwritten, %d kept, %d failed\n",
			f.Written, f.Overwritten, f.Skipped, f.Failed)
		if s.Interrupted {
			outputHuman("interrupted after %d items; rerun to resume\n", s.DoneFiles)
		}
	} else {
		outputJSON(res)
	}
	if res.Summary.Interrupted {
		if logRun != nil {
			logRun.Close()
		}
		os.Exit(ExitInterrupted)
	}
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
