package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/lpg-agent/internal/config"
	"github.com/jonathan/lpg-agent/internal/observability"
	"github.com/jonathan/lpg-agent/internal/schemas"
	defs "github.com/jonathan/lpg-agent/schemas"
)

var validateDataCmd = &cobra.Command{
	Use:   "validate-data",
	Short: "Validate the NIK artifacts against their JSON schemas",
	Long:  "Checks the source list, the processed list and the invalid list for structural errors. The processed and invalid lists may be absent before the first run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return validateData(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateDataCmd)
}

func validateData(cfg *config.Config, out io.Writer) error {
	artifacts := []struct {
		name     string
		schema   string
		path     string
		optional bool
	}{
		{"source", defs.Identities, cfg.Paths.Source, false},
		{"processed", defs.Processed, cfg.Paths.Processed, true},
		{"invalid", defs.Invalid, cfg.Paths.Invalid, true},
	}

	checks := make([]observability.ArtifactCheck, 0, len(artifacts))
	failed := 0
	for _, a := range artifacts {
		check := observability.ArtifactCheck{Name: a.name, Path: a.path}
		if _, err := os.Stat(a.path); a.optional && errors.Is(err, os.ErrNotExist) {
			check.Missing = true
			checks = append(checks, check)
			continue
		}

		if err := schemas.ValidateFile(a.schema, a.path); err != nil {
			failed++
			check.Err = err
			var verr *schemas.ValidationError
			if errors.As(err, &verr) {
				for _, fe := range verr.Errors {
					check.Issues = append(check.Issues, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
				}
			}
		}
		checks = append(checks, check)
	}

	observability.NewPrinter(out).PrintValidation(checks)
	if failed > 0 {
		return fmt.Errorf("%d of %d artifacts failed validation", failed, len(checks))
	}
	return nil
}
