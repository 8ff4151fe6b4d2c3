package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndPublish(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	observer := broadcaster.RegisterObserver("client-1", 8)
	require.NoError(t, broadcaster.Subscribe("client-1", "transactions.tx-1"))

	broadcaster.Publish("transactions.tx-1", "hello")

	select {
	case msg := <-observer.MessageChan:
		assert.Equal(t, "hello", msg)
	default:
		t.Fatal("expected a delivered message")
	}
}

func TestPublishReachesOnlySubscribers(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	subscribed := broadcaster.RegisterObserver("client-1", 8)
	bystander := broadcaster.RegisterObserver("client-2", 8)
	require.NoError(t, broadcaster.Subscribe("client-1", "user.alice"))
	require.NoError(t, broadcaster.Subscribe("client-2", "user.bob"))

	broadcaster.Publish("user.alice", "for alice")

	assert.Len(t, subscribed.MessageChan, 1)
	assert.Len(t, bystander.MessageChan, 0)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	observer := broadcaster.RegisterObserver("client-1", 8)
	require.NoError(t, broadcaster.Subscribe("client-1", "transactions.tx-1"))
	require.NoError(t, broadcaster.Unsubscribe("client-1", "transactions.tx-1"))

	broadcaster.Publish("transactions.tx-1", "after unsubscribe")

	assert.Len(t, observer.MessageChan, 0)
	assert.Empty(t, broadcaster.Subscriptions("client-1"))
}

func TestSubscribeUnknownObserver(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	assert.ErrorIs(t, broadcaster.Subscribe("nobody", "transactions.tx-1"), ErrObserverNotFound)
}

func TestUnsubscribeErrors(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	broadcaster.RegisterObserver("client-1", 8)

	assert.ErrorIs(t, broadcaster.Unsubscribe("nobody", "transactions.tx-1"), ErrObserverNotFound)
	assert.ErrorIs(t, broadcaster.Unsubscribe("client-1", "transactions.tx-1"), ErrSubscriptionNotFound)
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	// Must not panic or block.
	broadcaster.Publish("transactions.ghost", "nobody listens")
}

func TestPublishDropsWhenObserverIsFull(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	observer := broadcaster.RegisterObserver("slow-client", 1)
	require.NoError(t, broadcaster.Subscribe("slow-client", "transactions.tx-1"))

	broadcaster.Publish("transactions.tx-1", "first")
	broadcaster.Publish("transactions.tx-1", "second") // dropped, never blocks

	assert.Len(t, observer.MessageChan, 1)
	assert.Equal(t, "first", <-observer.MessageChan)
}

func TestDisconnectRemovesAllSubscriptions(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	observer := broadcaster.RegisterObserver("client-1", 8)
	require.NoError(t, broadcaster.Subscribe("client-1", "transactions.tx-1"))
	require.NoError(t, broadcaster.Subscribe("client-1", "user.alice"))

	broadcaster.Disconnect("client-1")
	broadcaster.Publish("transactions.tx-1", "gone")
	broadcaster.Publish("user.alice", "gone")

	assert.Len(t, observer.MessageChan, 0)
	assert.Nil(t, broadcaster.Subscriptions("client-1"))

	// Idempotent for repeated and unknown disconnects.
	broadcaster.Disconnect("client-1")
	broadcaster.Disconnect("never-connected")
}

func TestSubscriptionsListsChannels(t *testing.T) {
	broadcaster := NewNotificationBroadcaster()
	broadcaster.RegisterObserver("client-1", 8)
	require.NoError(t, broadcaster.Subscribe("client-1", "transactions.tx-1"))
	require.NoError(t, broadcaster.Subscribe("client-1", "user.alice"))

	assert.ElementsMatch(t, []string{"transactions.tx-1", "user.alice"}, broadcaster.Subscriptions("client-1"))
}
