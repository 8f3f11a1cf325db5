package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"
	"pkt.systems/svckit/blob"
	"pkt.systems/svckit/cache"
	"pkt.systems/svckit/email"
	"pkt.systems/svckit/internal/svcfields"
	"pkt.systems/svckit/notify"
	"pkt.systems/svckit/pubsub"
	"pkt.systems/svckit/sms"
	"pkt.systems/svckit/vector"
)

const checkTimeout = 15 * time.Second

type closer interface {
	Close() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

func newCheckCommand(baseLogger pslog.Logger, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [service=url ...]",
		Short: "Open each configured service and verify backend connectivity",
		Long: `check opens every configured service and, where the driver supports it,
pings the backend. Without arguments the configured settings are checked;
positional service=url pairs override or extend them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := svcfields.WithSubsystem(baseLogger, "cli.check")
			settings, err := checkTargets(*configPath, args)
			if err != nil {
				return err
			}
			failed := 0
			for _, s := range settings {
				if err := checkSetting(cmd.Context(), s); err != nil {
					failed++
					logger.Warn("check.failed", "service", s.service, "url", s.url, "error", err)
					fmt.Fprintf(cmd.OutOrStdout(), "%-7s %s FAILED: %v\n", s.service, s.url, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-7s %s ok\n", s.service, s.url)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d settings failed", failed, len(settings))
			}
			return nil
		},
	}
	return cmd
}

func checkTargets(configPath string, args []string) ([]serviceSetting, error) {
	overrides, err := parseSettingArgs(args)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		return overrides, nil
	}
	cfg, err := resolveConfig(configPath)
	if err != nil {
		return nil, err
	}
	settings := configuredSettings(cfg)
	if len(settings) == 0 {
		return nil, fmt.Errorf("nothing to check: no services configured")
	}
	return settings, nil
}

func checkSetting(ctx context.Context, s serviceSetting) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	svc, err := openService(ctx, s)
	if err != nil {
		return err
	}
	defer svc.Close()
	if p, ok := svc.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func openService(ctx context.Context, s serviceSetting) (closer, error) {
	switch s.service {
	case "cache":
		return cache.Open(ctx, s.url)
	case "pubsub":
		return pubsub.Open(ctx, s.url)
	case "blob":
		return blob.Open(ctx, s.url)
	case "email":
		return email.Open(ctx, s.url)
	case "sms":
		return sms.Open(ctx, s.url)
	case "notify":
		return notify.Open(ctx, s.url)
	case "vector":
		return vector.Open(ctx, s.url)
	default:
		return nil, fmt.Errorf("unknown service %q", s.service)
	}
}
