package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"bridge-backend/internal/config"
	"bridge-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// ConfirmationEvent is the message the chain-monitoring collaborator
// publishes for every confirmation depth change it observes.
type ConfirmationEvent struct {
	ChainRef       string `json:"chain_ref"`
	Confirmations  int    `json:"confirmations"`
	BlockReference string `json:"block_reference,omitempty"`
}

// NATSClient wraps the message server connection: inbound confirmation
// events and outbound state-change notifications.
type NATSClient struct {
	conn               *nats.Conn
	js                 nats.JetStreamContext
	eventSubjectPrefix string
}

// NewNATSClient connects to the message server with unlimited reconnects.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ [NATS] disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ [NATS] reconnected to %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	log.Printf("✅ [NATS] connected to %s", cfg.URL)

	return &NATSClient{
		conn:               conn,
		js:                 js,
		eventSubjectPrefix: cfg.EventSubjectPrefix,
	}, nil
}

// SubscribeToConfirmations subscribes to the confirmation subject and decodes
// each message into a ConfirmationEvent before handing it to the handler.
// Malformed messages are logged and dropped, never retried.
func (c *NATSClient) SubscribeToConfirmations(subject string, handler func(*ConfirmationEvent)) (*nats.Subscription, error) {
	return c.subscribe(subject, func(msg *nats.Msg) {
		metrics.ConfirmationEventsReceived.Inc()

		var event ConfirmationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("❌ [NATS] failed to parse confirmation event on %s: %v", msg.Subject, err)
			metrics.ConfirmationEventsDropped.WithLabelValues("malformed").Inc()
			return
		}
		if event.ChainRef == "" {
			log.Printf("❌ [NATS] confirmation event without chain ref on %s", msg.Subject)
			metrics.ConfirmationEventsDropped.WithLabelValues("missing_chain_ref").Inc()
			return
		}

		handler(&event)
		msg.Ack()
	})
}

// subscribe tries a plain subscription first and falls back to JetStream.
func (c *NATSClient) subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, handler)
	if err == nil {
		log.Printf("✅ [NATS] subscribed: %s", subject)
		return sub, nil
	}

	log.Printf("⚠️ [NATS] plain subscribe failed, trying JetStream: %v", err)

	sub, err = c.js.Subscribe(subject, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	log.Printf("✅ [NATS] JetStream subscribed: %s", subject)
	return sub, nil
}

// PublishTransactionEvent publishes a state-change notification under
// "<prefix>.<state>.<txID>" so downstream consumers can filter by state.
func (c *NATSClient) PublishTransactionEvent(txID, state string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", c.eventSubjectPrefix, state, txID)
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish transaction event: %w", err)
	}
	return nil
}

// IsConnected reports the live connection status.
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
