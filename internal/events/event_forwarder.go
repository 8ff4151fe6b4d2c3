package events

import (
	"log"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/models"
)

// NewTransactionEventForwarder returns the sink the state tracker calls on
// every published snapshot. It mirrors state changes onto the message server
// so out-of-process consumers (reporting, reconciliation) see the same feed
// the WebSocket observers do. Publish failures are logged and dropped: the
// message server is a mirror, never part of the transition itself.
func NewTransactionEventForwarder(natsClient *clients.NATSClient) func(models.BridgeTransaction) {
	return func(tx models.BridgeTransaction) {
		if natsClient == nil || !natsClient.IsConnected() {
			return
		}
		if err := natsClient.PublishTransactionEvent(tx.ID, string(tx.State), tx); err != nil {
			log.Printf("⚠️ [Events] failed to forward state change for %s: %v", tx.ID, err)
		}
	}
}
