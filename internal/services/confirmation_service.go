package services

import (
	"fmt"
	"log"
	"time"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/config"

	"github.com/nats-io/nats.go"
)

// ConfirmationService consumes the chain-monitoring collaborator's
// confirmation feed and applies it to the state machine. It also runs the
// deadline sweeper that fails transactions stuck waiting for confirmations.
type ConfirmationService struct {
	natsClient *clients.NATSClient
	tracker    *BridgeStateTracker
	cfg        config.NATSConfig
	deadline   time.Duration

	subscription *nats.Subscription
	stopChan     chan struct{}
	running      bool
}

// NewConfirmationService creates the service; Start wires it up.
func NewConfirmationService(
	natsClient *clients.NATSClient,
	tracker *BridgeStateTracker,
	natsCfg config.NATSConfig,
	confirmationDeadline time.Duration,
) *ConfirmationService {
	return &ConfirmationService{
		natsClient: natsClient,
		tracker:    tracker,
		cfg:        natsCfg,
		deadline:   confirmationDeadline,
		stopChan:   make(chan struct{}),
	}
}

// Start subscribes to the confirmation subject and launches the deadline
// sweeper.
func (s *ConfirmationService) Start() error {
	if s.running {
		return fmt.Errorf("confirmation service already running")
	}

	sub, err := s.natsClient.SubscribeToConfirmations(s.cfg.ConfirmationSubject, s.handleConfirmation)
	if err != nil {
		return fmt.Errorf("failed to subscribe to confirmation feed: %w", err)
	}
	s.subscription = sub
	s.running = true

	go s.sweepLoop()

	log.Printf("🚀 [ConfirmationService] started: subject=%s, deadline=%v", s.cfg.ConfirmationSubject, s.deadline)
	return nil
}

// Stop unsubscribes and stops the sweeper.
func (s *ConfirmationService) Stop() {
	if !s.running {
		return
	}
	s.running = false

	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			log.Printf("⚠️ [ConfirmationService] failed to unsubscribe: %v", err)
		}
	}
	close(s.stopChan)
	log.Printf("🛑 [ConfirmationService] stopped")
}

// handleConfirmation applies one feed event. The feed is at-least-once;
// duplicates and regressions are dropped inside the tracker.
func (s *ConfirmationService) handleConfirmation(event *clients.ConfirmationEvent) {
	if err := s.tracker.RecordConfirmation(event.ChainRef, event.Confirmations); err != nil {
		log.Printf("⚠️ [ConfirmationService] confirmation for %s not applied: %v", event.ChainRef, err)
		return
	}
	log.Printf("📨 [ConfirmationService] chain ref %s at %d confirmation(s)", event.ChainRef, event.Confirmations)
}

// sweepLoop periodically fails transactions that exceeded the confirmation
// deadline without progress. The interval is a fraction of the deadline,
// clamped so short test deadlines still sweep promptly.
func (s *ConfirmationService) sweepLoop() {
	interval := s.deadline / 10
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if failed := s.tracker.SweepConfirmationDeadline(s.deadline); failed > 0 {
				log.Printf("⏰ [ConfirmationService] failed %d transaction(s) past the confirmation deadline", failed)
			}
		case <-s.stopChan:
			return
		}
	}
}
