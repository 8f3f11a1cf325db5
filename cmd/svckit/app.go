package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"
	"pkt.systems/svckit"
	"pkt.systems/svckit/internal/svcfields"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("SVCKIT_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "svckit")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			svcfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "svckit",
		Short:         "svckit inspects and provisions URL-configured service backends",
		SilenceErrors: true,
		Example: `
  # Verify the configured backends are reachable
  SVCKIT_CACHE=redis://localhost:6379/0 svckit check

  # Verify explicit settings without a config file
  svckit check cache=memcached://localhost:11211 blob=s3://my-bucket/data

  # Emit Terraform for the AWS-backed settings
  svckit terraform --out infra/ cache=dynamodb://svc-cache blob=s3://svc-blobs
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to svckit.yaml (default: $SVCKIT_CONFIG, then the user config dir)")
	cmd.AddCommand(
		newCheckCommand(baseLogger, &configPath),
		newTerraformCommand(baseLogger, &configPath),
		newVersionCommand(),
	)
	return cmd
}

// resolveConfig loads the effective configuration: the --config flag wins,
// then $SVCKIT_CONFIG, then svckit.yaml in the user config dir when present.
func resolveConfig(flagPath string) (*svckit.Config, error) {
	path := strings.TrimSpace(flagPath)
	explicit := path != ""
	if path == "" {
		path = strings.TrimSpace(os.Getenv("SVCKIT_CONFIG"))
		explicit = path != ""
	}
	if path == "" {
		if dir, err := svckit.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, svckit.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path != "" && !explicit {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	return svckit.LoadConfig(path)
}

// configuredSettings flattens the per-service URLs into (service, url)
// pairs, skipping services left unconfigured.
func configuredSettings(cfg *svckit.Config) []serviceSetting {
	all := []serviceSetting{
		{"cache", cfg.Cache},
		{"pubsub", cfg.PubSub},
		{"blob", cfg.Blob},
		{"email", cfg.Email},
		{"sms", cfg.SMS},
		{"notify", cfg.Notify},
		{"vector", cfg.Vector},
	}
	out := make([]serviceSetting, 0, len(all))
	for _, s := range all {
		if strings.TrimSpace(s.url) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

type serviceSetting struct {
	service string
	url     string
}

// parseSettingArgs parses positional "service=url" overrides.
func parseSettingArgs(args []string) ([]serviceSetting, error) {
	out := make([]serviceSetting, 0, len(args))
	for _, arg := range args {
		service, url, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(service) == "" || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("argument %q is not service=url", arg)
		}
		switch service {
		case "cache", "pubsub", "blob", "email", "sms", "notify", "vector":
		default:
			return nil, fmt.Errorf("unknown service %q (want cache, pubsub, blob, email, sms, notify or vector)", service)
		}
		out = append(out, serviceSetting{service: service, url: url})
	}
	return out, nil
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
