package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/notify"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// BuildEmailSender picks SendGrid, SES or the logging stub from EMAIL_PROVIDER.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY; merchant emails are logged only")
	case "ses":
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}

// BuildMerchantNotifier wires paid-order emails to the tenant's notification
// address.
func BuildMerchantNotifier(cfg *appconfig.Config, awsCfg aws.Config, channels tenant.Directory, logger *logging.Logger) *notify.MerchantNotifier {
	var opts []notify.MerchantOption
	if cfg.MerchantFallbackEmail != "" {
		opts = append(opts, notify.WithFallbackRecipient(cfg.MerchantFallbackEmail))
	}
	return notify.NewMerchantNotifier(BuildEmailSender(cfg, awsCfg, logger), channels, logger, opts...)
}
