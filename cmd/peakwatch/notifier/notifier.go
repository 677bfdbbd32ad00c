// Package notifier builds the tracker's notification channels from config.
package notifier

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/peakwatch/cmd/peakwatch/config"
	"github.com/HatiCode/peakwatch/pkg/notify"
)

// New returns a notifier fanning out to every configured channel, or nil when
// none is configured.
func New(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	var channels notify.Multi
	for _, name := range cfg.Notifiers {
		switch name {
		case "log":
			channels = append(channels, &notify.LogNotifier{Logger: logger})
		case "webhook":
			n, err := notify.NewWebhookNotifier(cfg.WebhookURL)
			if err != nil {
				return nil, err
			}
			channels = append(channels, n)
		case "nostr":
			n, err := notify.NewNostrNotifier(cfg.NostrSecretKey, cfg.NostrRelays)
			if err != nil {
				return nil, fmt.Errorf("nostr notifier: %w", err)
			}
			logger.Info("nostr notifier configured", "pubkey", n.PublicKey(), "relays", len(cfg.NostrRelays))
			channels = append(channels, n)
		case "email":
			n, err := notify.NewEmailNotifier(notify.EmailConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
				To:       cfg.EmailTo,
				TLS:      cfg.SMTPTLS,
			})
			if err != nil {
				return nil, err
			}
			logger.Info("email notifier configured", "smtp_host", cfg.SMTPHost, "recipients", len(cfg.EmailTo))
			channels = append(channels, n)
		default:
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
	}

	if len(channels) == 0 {
		return nil, nil
	}
	return channels, nil
}
