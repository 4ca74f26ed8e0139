package providers

import (
	"github.com/pkg/errors"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
)

// SelectProvider picks the configured send provider. Providers are
// interchangeable; nothing outside this package knows which one runs.
func SelectProvider(cfg *config.ProviderConfig) (interfaces.SendProvider, error) {
	switch cfg.Kind {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, errors.New("SMTP_HOST is required for the smtp provider")
		}
		return NewSMTPProvider(cfg), nil
	case "postmark":
		if cfg.PostmarkServerToken == "" {
			return nil, errors.New("POSTMARK_SERVER_TOKEN is required for the postmark provider")
		}
		return NewPostmarkProvider(cfg), nil
	default:
		return nil, errors.Errorf("unknown send provider %q", cfg.Kind)
	}
}
