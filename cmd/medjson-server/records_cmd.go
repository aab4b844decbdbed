package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ehr/medjson/internal/config"
	"github.com/ehr/medjson/internal/domain/records"
	"github.com/ehr/medjson/internal/platform/filestore"
)

func recordsCmd(fsys afero.Fs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect the record store",
	}

	// records list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sorted, _ := cmd.Flags().GetBool("sorted")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := cliApp(cmd, fsys)
			if err != nil {
				return err
			}

			var files []filestore.StoredFile
			if sorted {
				files, err = a.svc.ListRecords(cmd.Context())
			} else {
				files, err = a.svc.ListFiles(cmd.Context())
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}
			return printFiles(cmd.OutOrStdout(), files)
		},
	}
	listCmd.Flags().Bool("sorted", false, "Order by created_at, most recent first")
	listCmd.Flags().Bool("json", false, "Print documents as JSON")

	// records check
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Scan the store and report documents that do not parse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			strict, _ := cmd.Flags().GetBool("strict")

			a, err := cliApp(cmd, fsys)
			if err != nil {
				return err
			}
			results, err := a.store.Scan(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var parsed, skipped int
			for _, res := range results {
				if res.Outcome == filestore.Skipped {
					skipped++
					fmt.Fprintf(out, "skipped %s: %s\n", res.Name, res.Reason)
					continue
				}
				parsed++
			}
			fmt.Fprintf(out, "%s: %d parsed, %d skipped\n", a.store.Dir(), parsed, skipped)

			if strict && skipped > 0 {
				return fmt.Errorf("%d documents do not parse", skipped)
			}
			return nil
		},
	}
	checkCmd.Flags().Bool("strict", false, "Exit with an error when any document is skipped")

	// records validate
	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a JSON file the way the upload form does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			data, err := afero.ReadFile(fsys, args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if max := cfg.MaxUploadBytes(); int64(len(data)) > max {
				return fmt.Errorf("%s: file too large: %d bytes, maximum is %d", args[0], len(data), max)
			}

			doc, err := records.ValidateUpload(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d fields)\n", args[0], len(doc))
			return nil
		},
	}

	cmd.AddCommand(listCmd, checkCmd, validateCmd)
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cliApp wires the store for a one-shot command. Log output goes to stderr
// so it never mixes with command output.
func cliApp(cmd *cobra.Command, fsys afero.Fs) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cmd.Context() == nil {
		cmd.SetContext(context.Background())
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		With().Timestamp().Logger().
		Level(cfg.Level())
	return newApp(cfg, logger, fsys), nil
}

func printFiles(w io.Writer, files []filestore.StoredFile) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCREATED\tPATIENT\tSIZE")
	for _, f := range files {
		patient := ""
		if obj, ok := f.Data.(map[string]any); ok {
			if v, ok := obj[records.FieldPatientName]; ok && v != nil {
				patient = fmt.Sprint(v)
			}
		}
		created := f.CreatedAt()
		if created == "" {
			created = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", f.Filename, created, patient, f.Size)
	}
	return tw.Flush()
}
