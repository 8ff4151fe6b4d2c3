package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/codec"
	"bridge-backend/internal/config"
	"bridge-backend/internal/db"
	"bridge-backend/internal/events"
	"bridge-backend/internal/repository"
	"bridge-backend/internal/services"

	"gorm.io/gorm"
)

// ServiceContainer holds every wired component of the bridge backend.
type ServiceContainer struct {
	// Database
	DB *gorm.DB

	// Repositories
	TransactionRepo repository.BridgeTransactionRepository

	// Codecs
	AddressCodec *codec.AddressCodec
	AmountCodec  *codec.AmountCodec

	// Clients
	SignerClient *clients.SignerClient
	NATSClient   *clients.NATSClient

	// Core Services
	Broadcaster         *services.NotificationBroadcaster
	StateTracker        *services.BridgeStateTracker
	Executor            *services.TransactionExecutor
	Orchestrator        *services.BridgeOrchestrator
	ConfirmationService *services.ConfirmationService

	natsOnce sync.Once
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")

		container := &ServiceContainer{
			DB: db.DB,
		}

		if err := container.initCodecs(); err != nil {
			initErr = fmt.Errorf("failed to initialize codecs: %w", err)
			return
		}
		if err := container.initCoreServices(); err != nil {
			initErr = fmt.Errorf("failed to initialize core services: %w", err)
			return
		}
		if err := container.initEventServices(); err != nil {
			// Without the confirmation feed, pending transactions never
			// complete; this is fatal, not optional.
			initErr = fmt.Errorf("failed to initialize event services: %w", err)
			return
		}

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

// initCodecs builds the pure conversion components from configuration.
func (c *ServiceContainer) initCodecs() error {
	log.Println("📦 Initializing Codecs...")

	bridgeCfg := config.AppConfig.Bridge

	addressCodec, err := codec.NewAddressCodec(bridgeCfg.SourceNetwork)
	if err != nil {
		return err
	}
	c.AddressCodec = addressCodec

	amountCodec, err := codec.NewAmountCodec(bridgeCfg.MinAmount, bridgeCfg.MaxAmount)
	if err != nil {
		return err
	}
	c.AmountCodec = amountCodec

	log.Printf("✅ Codecs initialized: network=%s, bounds=[%s, %s]",
		bridgeCfg.SourceNetwork, bridgeCfg.MinAmount, bridgeCfg.MaxAmount)
	return nil
}

// initCoreServices wires repository, tracker, executor and orchestrator.
func (c *ServiceContainer) initCoreServices() error {
	log.Println("🔧 Initializing Core Services...")

	bridgeCfg := config.AppConfig.Bridge

	c.TransactionRepo = repository.NewBridgeTransactionRepository(c.DB)
	c.Broadcaster = services.NewNotificationBroadcaster()

	c.StateTracker = services.NewBridgeStateTracker(
		c.TransactionRepo,
		c.Broadcaster,
		bridgeCfg.ConfirmationThreshold,
	)

	c.SignerClient = clients.NewSignerClient(config.AppConfig.Signer)
	c.Executor = services.NewTransactionExecutor(c.SignerClient, services.ExecutorConfig{
		Timeout:     bridgeCfg.ExecutionTimeoutDuration(),
		MaxAttempts: bridgeCfg.MaxAttempts,
		Backoff:     bridgeCfg.RetryBackoffDuration(),
	})

	c.Orchestrator = services.NewBridgeOrchestrator(
		c.AddressCodec,
		c.AmountCodec,
		c.StateTracker,
		c.Executor,
		bridgeCfg.SourceDecimals,
	)

	// Reload open transactions so confirmation events keep routing after a
	// restart.
	if err := c.StateTracker.RecoverOpen(context.Background()); err != nil {
		log.Printf("⚠️ [ServiceContainer] Failed to recover open transactions: %v", err)
	}

	log.Println("✅ Core Services initialized")
	return nil
}

// initEventServices connects NATS and starts the confirmation consumer.
func (c *ServiceContainer) initEventServices() error {
	if config.AppConfig.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}

	log.Println("📡 Initializing Event Services...")

	if err := c.InitNATSClient(); err != nil {
		return fmt.Errorf("failed to initialize NATS client: %w", err)
	}

	// Mirror every state change onto the message server.
	c.StateTracker.SetEventSink(events.NewTransactionEventForwarder(c.NATSClient))

	c.ConfirmationService = services.NewConfirmationService(
		c.NATSClient,
		c.StateTracker,
		config.AppConfig.NATS,
		config.AppConfig.Bridge.ConfirmationDeadlineDuration(),
	)
	if err := c.ConfirmationService.Start(); err != nil {
		return fmt.Errorf("failed to start confirmation service: %w", err)
	}

	log.Println("✅ Event Services initialized")
	return nil
}

// InitNATSClient connects the NATS client once.
func (c *ServiceContainer) InitNATSClient() error {
	var initErr error

	c.natsOnce.Do(func() {
		log.Println("🔌 Connecting to NATS...")

		natsClient, err := clients.NewNATSClient(config.AppConfig.NATS)
		if err != nil {
			log.Printf("❌ Failed to connect to NATS at %s: %v", config.AppConfig.NATS.URL, err)
			log.Printf("   → Please ensure the NATS server is running on the configured port")
			initErr = fmt.Errorf("failed to create NATS client: %w", err)
			return
		}

		c.NATSClient = natsClient
	})

	return initErr
}

// Cleanup stops background services and closes connections.
func (c *ServiceContainer) Cleanup() {
	log.Println("🧹 Cleaning up Service Container...")

	if c.ConfirmationService != nil {
		c.ConfirmationService.Stop()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}

	log.Println("✅ Service Container cleaned up")
}
