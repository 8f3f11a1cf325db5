package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"
	"pkt.systems/svckit/internal/svcfields"
	"pkt.systems/svckit/terraform"
)

func newTerraformCommand(baseLogger pslog.Logger, configPath *string) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "terraform [service=url ...]",
		Short: "Emit Terraform JSON for the AWS resources the configured settings expect",
		Long: `terraform inspects each configured settings URL and writes a svckit.tf.json
fragment declaring the AWS resources its driver depends on: DynamoDB tables
for dynamodb:// caches, S3 buckets for s3:// blob stores, SES identities for
ses:// email. Settings without AWS infrastructure are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := svcfields.WithSubsystem(baseLogger, "cli.terraform")
			settings, err := checkTargets(*configPath, args)
			if err != nil {
				return err
			}
			doc := terraform.NewDocument()
			for _, s := range settings {
				emitted, err := terraform.EmitFromSettings(doc, s.url)
				if err != nil {
					return fmt.Errorf("emit %s %q: %w", s.service, s.url, err)
				}
				if !emitted {
					logger.Debug("terraform.skipped", "service", s.service, "url", s.url)
				}
			}
			if doc.Len() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no AWS-backed settings; nothing to emit")
				return nil
			}
			rendered, err := doc.Render()
			if err != nil {
				return err
			}
			path := filepath.Join(outDir, "svckit.tf.json")
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir %q: %w", outDir, err)
			}
			if err := os.WriteFile(path, rendered, 0o644); err != nil {
				return fmt.Errorf("write %q: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d resources)\n",
				path, humanizeBytes(int64(len(rendered))), doc.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory the .tf.json fragment is written to")
	return cmd
}
