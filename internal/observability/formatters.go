// Package observability provides formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/lpg-agent/internal/batch"
	"github.com/jonathan/lpg-agent/internal/state"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 64
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, boxWidth-4), boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// RunReport is the end-of-run information printed after the batch loop.
type RunReport struct {
	Summary       batch.Summary
	Started       string
	Finished      string
	ProcessedPath string
	InvalidPath   string
	InvalidCount  int
	RunID         string
}

// PrintRunReport outputs the final weight, artifact locations and timestamps.
func (p *Printer) PrintRunReport(rep RunReport) {
	s := rep.Summary
	var sb strings.Builder

	fmt.Fprintf(&sb, "Stopped:       %s\n", s.StopReason)
	fmt.Fprintf(&sb, "Final weight:  %d / %d\n", s.FinalWeight, s.MaxWeight)
	fmt.Fprintf(&sb, "Iterations:    %d\n", s.Iterations)
	fmt.Fprintf(&sb, "Completed:     %d\n", s.Completed)
	fmt.Fprintf(&sb, "Invalid:       %d\n", s.Invalid)
	fmt.Fprintf(&sb, "Aborted:       %d\n", s.Aborted)
	if s.Failed > 0 {
		fmt.Fprintf(&sb, "Failed:        %d\n", s.Failed)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&sb, "No category:   %d\n", s.Skipped)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Processed:     %s\n", rep.ProcessedPath)
	if rep.InvalidCount > 0 {
		fmt.Fprintf(&sb, "Invalid list:  %s (%d)\n", rep.InvalidPath, rep.InvalidCount)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Started:       %s\n", rep.Started)
	fmt.Fprintf(&sb, "Finished:      %s", rep.Finished)
	if rep.RunID != "" {
		fmt.Fprintf(&sb, "\nRun:           %s", rep.RunID)
	}

	p.printBox("RUN COMPLETE", sb.String())
}

// PrintStatus outputs an offline progress snapshot.
func (p *Printer) PrintStatus(rep state.Report, mirror *MirrorCounts) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Source identities:   %d\n", rep.Source)
	fmt.Fprintf(&sb, "Processed:           %d\n", rep.Processed)
	fmt.Fprintf(&sb, "Invalid:             %d\n", rep.Invalid)
	fmt.Fprintf(&sb, "Remaining pool:      %d\n", rep.Remaining)
	fmt.Fprintf(&sb, "Weight:              %d / %d", rep.Weight, rep.MaxWeight)
	if rep.QuotaMet() {
		sb.WriteString("  (quota met)")
	}

	var warnings []string
	if rep.MissingCategory > 0 {
		warnings = append(warnings, fmt.Sprintf("%d remaining without KATEGORI", rep.MissingCategory))
	}
	if rep.MissingIdentifier > 0 {
		warnings = append(warnings, fmt.Sprintf("%d source entries without NIK", rep.MissingIdentifier))
	}
	if len(warnings) > 0 {
		sb.WriteString("\n\n")
		for i, w := range warnings {
			fmt.Fprintf(&sb, "⚠ %s", w)
			if i < len(warnings)-1 {
				sb.WriteString("\n")
			}
		}
	}

	if mirror != nil {
		sb.WriteString("\n\nDatabase mirror:\n")
		fmt.Fprintf(&sb, "  processed %d, invalid %d, log entries %d",
			mirror.Processed, mirror.Invalid, mirror.DiagnosticEntries)
		if mirror.LastRun != "" {
			fmt.Fprintf(&sb, "\n  last run: %s", mirror.LastRun)
		}
	}

	p.printBox("RUN STATUS", sb.String())
}

// MirrorCounts are row counts read from the database mirror.
type MirrorCounts struct {
	Processed         int
	Invalid           int
	DiagnosticEntries int
	LastRun           string
}

// ArtifactCheck is the outcome of validating one artifact file. Missing marks
// an optional artifact that has not been written yet.
type ArtifactCheck struct {
	Name    string
	Path    string
	Missing bool
	Err     error
	Issues  []string
}

// PrintValidation outputs artifact validation results.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintValidation(checks []ArtifactCheck) {
	failed := 0
	for _, c := range checks {
		if c.Err != nil {
			failed++
		}
	}
	if failed == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, fmt.Sprintf("✅ ALL %d ARTIFACTS VALID", len(checks)))
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d artifacts failed:\n\n", failed, len(checks))
	for i, c := range checks {
		if c.Missing {
			fmt.Fprintf(&sb, "- %s (not created yet)\n", c.Name)
			continue
		}
		if c.Err == nil {
			fmt.Fprintf(&sb, "✓ %s\n", c.Name)
			continue
		}
		fmt.Fprintf(&sb, "⚠ %s (%s)\n", c.Name, c.Path)
		issues := c.Issues
		if len(issues) == 0 {
			issues = []string{c.Err.Error()}
		}
		count := min(len(issues), maxItemsToShow)
		for _, issue := range issues[:count] {
			fmt.Fprintf(&sb, "  %s\n", issue)
		}
		if len(issues) > maxItemsToShow {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(issues)-maxItemsToShow)
		}
		if i < len(checks)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("ARTIFACT VALIDATION", strings.TrimSuffix(sb.String(), "\n"))
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-3]) + "..."
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
