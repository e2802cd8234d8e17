package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/backup"
	"github.com/MarcoPoloResearchLab/mindvault/internal/organize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newExportCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every note to a JSON backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cmd.Context(), applicationOptions{console: true})
			if err != nil {
				return err
			}
			defer app.close() //nolint:errcheck

			if outPath == "-" {
				_, err := app.backup.WriteTo(cmd.OutOrStdout())
				return err
			}
			if outPath == "" {
				outPath = backup.FileName(time.Now())
			}
			written, err := app.backup.ExportFile(outPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d notes to %s\n", written, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Destination file (default mindvault_backup_<date>.json, - for stdout)")
	return cmd
}

func newImportCommand() *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Merge notes from a JSON backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(inPath) == "" {
				return errors.New("--in is required")
			}
			data, err := os.ReadFile(inPath)
			if err != nil {
				return err
			}

			app, err := newApplication(cmd.Context(), applicationOptions{console: true})
			if err != nil {
				return err
			}
			defer app.close() //nolint:errcheck

			imported, err := app.backup.Import(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d notes\n", imported)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "Backup file to import")
	return cmd
}

func newOrganizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "organize",
		Short: "Classify every note into a subject and title placeholder notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cmd.Context(), applicationOptions{console: true})
			if err != nil {
				return err
			}
			defer app.close() //nolint:errcheck

			errOut := cmd.ErrOrStderr()
			summary, err := app.organizer.Run(cmd.Context(), func(progress organize.Progress) {
				fmt.Fprintf(errOut, "\rorganizing %d/%d (%d%%)", progress.Processed, progress.Total, progress.Percent())
			})
			fmt.Fprintln(errOut)
			if err != nil {
				app.logger.Warn("organize run ended early", zap.Error(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d, skipped %d, failed %d of %d notes\n",
				summary.Updated, summary.Skipped, summary.Failed, summary.Total)
			return err
		},
	}
}

func newTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := loadConfig()
			if err != nil {
				return err
			}
			if !appConfig.AuthEnabled() {
				return errors.New("auth.signing_secret is not configured")
			}
			issuer, err := newTokenIssuer(appConfig.AuthSigningSecret, appConfig.AuthTokenTTL)
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueAccessToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "Token subject")
	return cmd
}
