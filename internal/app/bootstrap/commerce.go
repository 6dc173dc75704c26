package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/whatsapp-commerce/internal/agent"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/internal/inbound"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging/whatsapp"
	observemetrics "github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/orders"
	"github.com/wolfman30/whatsapp-commerce/internal/payments"
	"github.com/wolfman30/whatsapp-commerce/internal/payments/paystack"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// EventSink receives operator-facing events such as handoffs and paid orders.
type EventSink interface {
	Publish(eventType string, payload any)
}

// CommerceDeps are the connections a binary opens before wiring the pipeline.
type CommerceDeps struct {
	Config    *appconfig.Config
	AWS       aws.Config
	Pool      *pgxpool.Pool
	MessageDB *sql.DB
	Redis     *redis.Client
	Metrics   *observemetrics.CommerceMetrics
	// Sink is optional; workers without an operator hub leave it nil.
	Sink   EventSink
	Logger *logging.Logger
}

// Commerce is the wired inbound and payment pipeline.
type Commerce struct {
	Tenants       *TenantSources
	WhatsApp      *whatsapp.Client
	Paystack      *paystack.Client
	Conversations *conversation.Store
	Messages      *conversation.MessageLog
	Locker        conversation.Locker
	Machine       *conversation.Machine
	OrderRepo     *orders.Repository
	Orders        *orders.Service
	Processed     *events.ProcessedStore
	Processor     *inbound.Processor
	Reconciler    *payments.Reconciler
}

// BuildCommerce wires every stage from channel lookup to payment
// reconciliation. Postgres is required.
func BuildCommerce(ctx context.Context, deps CommerceDeps) (*Commerce, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Pool == nil || deps.MessageDB == nil {
		return nil, fmt.Errorf("bootstrap: postgres is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	tenants, err := BuildTenantSources(ctx, cfg, deps.Pool, deps.Redis, logger)
	if err != nil {
		return nil, err
	}

	var locker conversation.Locker = conversation.NewKeyedMutex()
	if deps.Redis != nil {
		locker = conversation.NewRedisLocker(deps.Redis, cfg.ConversationLockTTL)
	} else {
		logger.Warn("redis unavailable; conversation locks are process-local")
	}

	waClient := whatsapp.New(whatsapp.Config{
		BaseURL:      cfg.WhatsAppBaseURL,
		GraphVersion: cfg.WhatsAppGraphVersion,
		AccessToken:  cfg.WhatsAppAccessToken,
		AppSecret:    cfg.WhatsAppAppSecret,
		Logger:       logger.Logger,
	})
	psClient := paystack.NewClient(cfg.PaystackSecretKey, cfg.PaystackCallbackURL, logger).WithBaseURL(cfg.PaystackBaseURL)

	messages := conversation.NewMessageLog(deps.MessageDB)
	convs := conversation.NewStore(deps.Pool)
	machine := conversation.NewMachine(tenants.Catalog)
	messenger := BuildOutboundMessenger(waClient, tenants.Channels, messages, deps.Metrics, logger)

	var gateway orders.CheckoutCreator
	if strings.TrimSpace(cfg.PaystackSecretKey) != "" {
		gateway = psClient
	} else {
		logger.Warn("PAYSTACK_SECRET_KEY not set; orders are created without payment links")
	}
	orderRepo := orders.NewRepository(deps.Pool)
	orderSvc := orders.NewService(orderRepo, gateway, messenger, logger,
		orders.WithPayerDomain(cfg.PaystackPayerDomain),
		orders.WithMetrics(deps.Metrics),
	)

	llm, model, err := BuildLLMClient(ctx, cfg, deps.AWS, logger)
	if err != nil {
		return nil, err
	}
	orchestrator := agent.NewOrchestrator(llm, machine, tenants.Catalog, logger,
		agent.WithModel(model),
		agent.WithTimeout(cfg.LLMTimeout),
		agent.WithMaxTokens(int32(cfg.LLMMaxTokens)),
		agent.WithMetrics(deps.Metrics),
	)

	procOpts := []inbound.Option{
		inbound.WithReadReceipts(waClient),
		inbound.WithMetrics(deps.Metrics),
	}
	recOpts := []payments.ReconcilerOption{
		payments.WithMerchantNotifier(BuildMerchantNotifier(cfg, deps.AWS, tenants.Channels, logger)),
		payments.WithMetrics(deps.Metrics),
	}
	if deps.Sink != nil {
		procOpts = append(procOpts, inbound.WithEventSink(deps.Sink))
		recOpts = append(recOpts, payments.WithEventSink(deps.Sink))
	}

	processor := inbound.NewProcessor(inbound.Deps{
		Log:       messages,
		Store:     convs,
		Channels:  tenants.Channels,
		Configs:   tenants.Configs,
		Locker:    locker,
		Agent:     orchestrator,
		Machine:   machine,
		Orders:    orderSvc,
		Messenger: messenger,
	}, logger, procOpts...)

	reconciler := payments.NewReconciler(orderRepo, convs, machine, locker, orderSvc, logger, recOpts...)

	return &Commerce{
		Tenants:       tenants,
		WhatsApp:      waClient,
		Paystack:      psClient,
		Conversations: convs,
		Messages:      messages,
		Locker:        locker,
		Machine:       machine,
		OrderRepo:     orderRepo,
		Orders:        orderSvc,
		Processed:     events.NewProcessedStore(deps.Pool),
		Processor:     processor,
		Reconciler:    reconciler,
	}, nil
}
