// Package pipeline assembles the delivery stack shared by the engine and the
// aggregator from configuration.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"notifications.app/engine/core/config"
	"notifications.app/engine/internal/aggregation"
	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/dispatch"
	"notifications.app/engine/internal/mail"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/queue"
	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/render"
	"notifications.app/engine/internal/retry"
	"notifications.app/engine/internal/secrets"
	"notifications.app/engine/internal/store"
	"notifications.app/engine/internal/svcauth"
)

const (
	rbacPSKHeader      = "x-rh-rbac-psk"
	rbacClientIDHeader = "x-rh-rbac-client-id"
	sourcesPSKHeader   = "x-rh-sources-psk"
)

type Pipeline struct {
	Registry     *connector.Registry
	Dispatcher   *dispatch.Dispatcher
	Resolver     recipients.Resolver
	Aggregations *aggregation.Store
	Digests      *aggregation.DigestJob

	closers []func() error
}

// Build wires the connectors, the recipient resolver and the digest job.
// digestProducer is only set by the aggregator when digests are handed to
// the engine as aggregation events.
func Build(ctx context.Context, cfg config.Config, stores *store.Stores, redisClient *redis.Client, digestProducer queue.Producer, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}

	rbacAuth := svcauth.FromConfig(cfg.RBAC.OIDC, svcauth.PSK{
		KeyHeader:      rbacPSKHeader,
		ClientIDHeader: rbacClientIDHeader,
		Key:            cfg.RBAC.PSK,
		ClientID:       cfg.RBAC.ClientID,
	})
	directory := recipients.NewRBACClient(cfg.RBAC.URL, cfg.RBAC.MaxResultsPerPage, rbacAuth,
		retry.PolicyFromConfig(cfg.RBAC.Retry), log,
		recipients.WithHTTPClient(&http.Client{Timeout: cfg.RBAC.Timeout}),
		recipients.WithRateLimit(cfg.RBAC.RequestsPerSecond),
	)
	resolver := recipients.NewResolver(directory, cfg.Dispatch.ResolverWorkers, log)

	sourcesAuth := svcauth.FromConfig(cfg.Secrets.OIDC, svcauth.PSK{KeyHeader: sourcesPSKHeader, Key: cfg.Secrets.PSK})
	secretStore := secrets.NewClient(cfg.Secrets.URL, &http.Client{Timeout: cfg.Secrets.Timeout}, sourcesAuth,
		retry.PolicyFromConfig(cfg.Secrets.Retry), log)

	renderer := render.NewClient(cfg.Renderer.URL, &http.Client{Timeout: cfg.Renderer.Timeout},
		retry.PolicyFromConfig(cfg.Renderer.Retry), log)

	mailer := mail.NewSMTPSender(cfg.SMTP)
	aggregations := aggregation.NewStore(stores.Aggregations(), log)

	p := &Pipeline{Resolver: resolver, Aggregations: aggregations}

	connectorPublisher, err := connectorPublisher(ctx, cfg.Connector, redisClient, log)
	if err != nil {
		return nil, err
	}
	if cfg.Connector.Transport == "amqp" {
		p.closers = append(p.closers, connectorPublisher.Close)
	}
	drawerPublisher := queue.NewRedisPublisher(redisClient, cfg.Connector.DrawerStream, log)

	webhook := connector.NewWebhookConnector(cfg.Webhook, secretStore, stores.Endpoints(), log)
	eventing := connector.NewEventingConnector(connectorPublisher, stores.Payloads(), cfg.Connector.MaxPayloadSize, log)
	email := connector.NewEmailConnector(connector.EmailDeps{
		Subscriptions: stores.Subscriptions(),
		Aggregations:  aggregations,
		Renderer:      renderer,
		Mailer:        mailer,
		MaxRecipients: cfg.SMTP.MaxRecipientsPerEmail,
		Logger:        log,
	})
	drawer := connector.NewDrawerConnector(connector.DrawerDeps{
		Enabled:       cfg.Features.DrawerEnabled,
		Subscriptions: stores.Subscriptions(),
		Entries:       stores.Drawer(),
		Renderer:      renderer,
		Publisher:     drawerPublisher,
		Logger:        log,
	})

	registry := connector.NewRegistry()
	registry.Register(model.EndpointTypeWebhook, "", webhook)
	registry.Register(model.EndpointTypeAnsible, "", webhook)
	registry.Register(model.EndpointTypeCamel, "", eventing)
	registry.Register(model.EndpointTypePagerDuty, "", eventing)
	registry.Register(model.EndpointTypeEmailSubscription, "", email)
	registry.Register(model.EndpointTypeDrawer, "", drawer)

	p.Registry = registry
	p.Dispatcher = dispatch.NewDispatcher(registry, resolver, stores.History(), cfg.Dispatch.Workers, log)
	p.Digests = aggregation.NewDigestJob(aggregation.DigestDeps{
		Store:         aggregations,
		Subscriptions: stores.Subscriptions(),
		Resolver:      resolver,
		Renderer:      renderer,
		Mailer:        mailer,
		Producer:      digestProducer,
		MaxRecipients: cfg.SMTP.MaxRecipientsPerEmail,
		Logger:        log,
	})

	log.InfoContext(ctx, "delivery pipeline ready",
		"connector_transport", cfg.Connector.Transport,
		"drawer_enabled", cfg.Features.DrawerEnabled,
		"dispatch_workers", cfg.Dispatch.Workers)

	return p, nil
}

// Close releases transports the pipeline owns. The shared redis client is
// left to the caller.
func (p *Pipeline) Close() error {
	var firstErr error
	for _, c := range p.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func connectorPublisher(ctx context.Context, cfg config.ConnectorConfig, redisClient *redis.Client, log *slog.Logger) (queue.Publisher, error) {
	switch cfg.Transport {
	case "amqp":
		conn, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to connector broker: %w", err)
		}
		log.InfoContext(ctx, "connector broker connected", "exchange", cfg.AMQPExchange)
		return queue.NewAMQPPublisher(conn, cfg.AMQPExchange, log), nil
	default:
		return queue.NewRedisPublisher(redisClient, cfg.RedisStream, log), nil
	}
}
