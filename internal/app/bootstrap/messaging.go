package bootstrap

import (
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging/whatsapp"
	observemetrics "github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// BuildOutboundMessenger creates the WhatsApp reply messenger and applies the
// persistence wrapper so delivered replies land in the message log.
func BuildOutboundMessenger(
	client *whatsapp.Client,
	channels tenant.Directory,
	log *conversation.MessageLog,
	metrics *observemetrics.CommerceMetrics,
	logger *logging.Logger,
) messaging.ReplyMessenger {
	var messenger messaging.ReplyMessenger = messaging.NewWhatsAppSender(client, channels, metrics, logger)
	if log != nil {
		messenger = messaging.WrapWithPersistence(messenger, log, logger)
	}
	return messenger
}
