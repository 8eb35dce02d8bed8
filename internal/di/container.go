// Package di assembles the runtime dependency graph: Firestore-backed
// repositories, the service layer, and the supporting gateways.
package di

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/threadline/api/internal/payments"
	"github.com/threadline/api/internal/platform/auth"
	"github.com/threadline/api/internal/platform/config"
	fsplatform "github.com/threadline/api/internal/platform/firestore"
	"github.com/threadline/api/internal/platform/jobs"
	"github.com/threadline/api/internal/platform/storage"
	fsrepo "github.com/threadline/api/internal/repositories/firestore"
	"github.com/threadline/api/internal/services"
)

// devTokenSecret keeps local development usable without provisioning real
// signing material. Production refuses to start without a configured secret.
const devTokenSecret = "local-dev-token-secret"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Users   services.UserService
	Catalog services.CatalogService
	Cart    services.CartService
	Orders  services.OrderService
}

// Container wires repositories, services, and gateway infrastructure for
// runtime use.
type Container struct {
	Config        config.Config
	Logger        *zap.Logger
	Firestore     *fsplatform.Provider
	Tokens        *auth.Tokens
	Authenticator *auth.Authenticator
	Images        storage.ImageStore
	Services      Services

	closers []func(context.Context) error
}

// NewContainer constructs the runtime dependencies from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	tokenSecret := cfg.Auth.TokenSecret
	if tokenSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("di: auth token secret is required in production")
		}
		logger.Warn("auth token secret not configured, using development default")
		tokenSecret = devTokenSecret
	}
	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret:        tokenSecret,
		TTL:           cfg.Auth.TokenTTL,
		AdminEmail:    cfg.Auth.AdminEmail,
		AdminPassword: cfg.Auth.AdminPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build token codec: %w", err)
	}
	c.Tokens = tokens
	c.Authenticator = auth.NewAuthenticator(tokens)

	c.Firestore = fsplatform.NewProvider(cfg.Firestore)
	c.closers = append(c.closers, c.Firestore.Close)

	products, err := fsrepo.NewProductRepository(c.Firestore)
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build product repository: %w", err))
	}
	users, err := fsrepo.NewUserRepository(c.Firestore)
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build user repository: %w", err))
	}
	carts, err := fsrepo.NewCartRepository(c.Firestore)
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build cart repository: %w", err))
	}
	orders, err := fsrepo.NewOrderRepository(c.Firestore)
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build order repository: %w", err))
	}

	images, err := buildImageStore(ctx, c, cfg.Storage)
	if err != nil {
		return nil, closeOnError(ctx, c, err)
	}
	c.Images = images

	gateway, err := buildPaymentGateway(cfg.Stripe, logger)
	if err != nil {
		return nil, closeOnError(ctx, c, err)
	}

	publisher, err := buildEventPublisher(ctx, c, cfg.Events)
	if err != nil {
		return nil, closeOnError(ctx, c, err)
	}

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:         users,
		Tokens:        tokens,
		AdminEmail:    cfg.Auth.AdminEmail,
		AdminPassword: cfg.Auth.AdminPassword,
	})
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build user service: %w", err))
	}
	c.Services.Users = userSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: products,
		Images:   images,
	})
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build catalog service: %w", err))
	}
	c.Services.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    carts,
		Products: products,
	})
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build cart service: %w", err))
	}
	c.Services.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:           orders,
		Products:         products,
		Carts:            carts,
		Gateway:          gateway,
		Events:           publisher,
		Currency:         cfg.Stripe.Currency,
		ShippingFeeCents: cfg.Stripe.ShippingFeeCents,
		SuccessURL:       cfg.Stripe.SuccessURL,
		CancelURL:        cfg.Stripe.CancelURL,
	})
	if err != nil {
		return nil, closeOnError(ctx, c, fmt.Errorf("di: build order service: %w", err))
	}
	c.Services.Orders = orderSvc

	return c, nil
}

// ReadinessCheck reports whether the Firestore backend is reachable.
func (c *Container) ReadinessCheck() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if c == nil || c.Firestore == nil {
			return errors.New("firestore provider not initialised")
		}
		_, err := c.Firestore.Client(ctx)
		return err
	}
}

// Close releases repository clients and gateway connections in reverse
// construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeOnError(ctx context.Context, c *Container, err error) error {
	if closeErr := c.Close(ctx); closeErr != nil {
		c.Logger.Warn("cleanup after failed container build", zap.Error(closeErr))
	}
	return err
}

func buildImageStore(ctx context.Context, c *Container, cfg config.StorageConfig) (storage.ImageStore, error) {
	if cfg.Bucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("di: build storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		store, err := storage.NewGCSImageStore(client, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("di: build gcs image store: %w", err)
		}
		return store, nil
	}

	store, err := storage.NewDiskImageStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("di: build disk image store: %w", err)
	}
	return store, nil
}

// buildPaymentGateway returns nil when no Stripe key is configured; the
// order service then rejects gateway checkout while cash-on-delivery keeps
// working.
func buildPaymentGateway(cfg config.StripeConfig, logger *zap.Logger) (payments.Provider, error) {
	if cfg.SecretKey == "" {
		logger.Info("stripe secret key not configured, gateway checkout disabled")
		return nil, nil
	}
	provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.SecretKey,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        logger.Named("stripe"),
	})
	if err != nil {
		return nil, fmt.Errorf("di: build stripe provider: %w", err)
	}
	return provider, nil
}

// buildEventPublisher returns nil when no topic is configured; order events
// are then logged but not published.
func buildEventPublisher(ctx context.Context, c *Container, cfg config.EventsConfig) (services.OrderEventPublisher, error) {
	if cfg.Topic == "" {
		return nil, nil
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("di: events project id is required when a topic is configured")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("di: build pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})

	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("di: build order event publisher: %w", err)
	}
	return publisher, nil
}
