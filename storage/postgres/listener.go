package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
)

// ResolutionNotification is the payload delivered for each recorded
// resolution. It carries the filterable columns, not the full record;
// subscribers that need the record fetch it by ID.
type ResolutionNotification struct {
	Seq         int64  `json:"seq"`
	ID          string `json:"id"`
	CaseID      string `json:"case_id"`
	EntityType  string `json:"entity_type"`
	Decision    string `json:"decision"`
	ChannelName string `json:"channel_name,omitempty"` // Only present in global notifications
	RecordedAt  int64  `json:"recorded_at"`            // Epoch nanoseconds
}

// Recorded returns the notification timestamp as a time.Time.
func (n ResolutionNotification) Recorded() time.Time {
	return time.Unix(0, n.RecordedAt)
}

// ResolutionHandler is a function type for handling incoming resolution notifications
type ResolutionHandler func(n ResolutionNotification) error

// SubscriptionManager manages subscriptions to PostgreSQL LISTEN/NOTIFY channels
type SubscriptionManager struct {
	subscriptions map[string][]ResolutionHandler
	mu            sync.RWMutex
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		subscriptions: make(map[string][]ResolutionHandler),
	}
}

// Subscribe adds a handler for a specific channel
func (sm *SubscriptionManager) Subscribe(channel string, handler ResolutionHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.subscriptions[channel] = append(sm.subscriptions[channel], handler)
}

// Unsubscribe removes handlers for a specific channel
func (sm *SubscriptionManager) Unsubscribe(channel string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.subscriptions, channel)
}

// GetChannels returns all subscribed channels
func (sm *SubscriptionManager) GetChannels() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	channels := make([]string, 0, len(sm.subscriptions))
	for channel := range sm.subscriptions {
		channels = append(channels, channel)
	}
	return channels
}

// HandleNotification processes an incoming notification
func (sm *SubscriptionManager) HandleNotification(channel string, payload string) error {
	sm.mu.RLock()
	handlers, exists := sm.subscriptions[channel]
	sm.mu.RUnlock()

	if !exists {
		return nil // No handlers for this channel
	}

	// Parse the JSON payload
	var notification ResolutionNotification
	if err := json.Unmarshal([]byte(payload), &notification); err != nil {
		return fmt.Errorf("failed to parse notification payload: %w", err)
	}

	// Call all handlers for this channel
	for _, handler := range handlers {
		if err := handler(notification); err != nil {
			// Log error but continue with other handlers
			log.Printf("Resolution handler error for channel %s: %v", channel, err)
		}
	}

	return nil
}

// NotificationListener wraps pq.Listener and keeps the set of LISTEN
// channels in sync with the subscription manager across reconnects.
type NotificationListener struct {
	listener      *pq.Listener
	subscriptions *SubscriptionManager
	logger        *log.Logger
	globalChannel string
	done          chan struct{}
	closed        int64 // atomic flag
	started       int64 // atomic flag, listen loop runs once
}

// NewNotificationListener creates a listener with default reconnection
// backoff, subscribed to nothing. The global channel defaults to the one
// the default table notifies on.
func NewNotificationListener(connectionString string, logger *log.Logger) (*NotificationListener, error) {
	return newNotificationListener(connectionString, "resolutions_global", 5*time.Second, 30*time.Second, logger)
}

func newNotificationListener(connectionString, globalChannel string, minInterval, maxInterval time.Duration, logger *log.Logger) (*NotificationListener, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[PG-Listener] ", log.LstdFlags)
	}

	nl := &NotificationListener{
		subscriptions: NewSubscriptionManager(),
		logger:        logger,
		globalChannel: globalChannel,
		done:          make(chan struct{}),
	}

	// Create pq listener with event callback
	nl.listener = pq.NewListener(connectionString, minInterval, maxInterval, nl.eventCallback)

	return nl, nil
}

// eventCallback handles listener lifecycle events
func (nl *NotificationListener) eventCallback(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		nl.logger.Printf("Connected to PostgreSQL for notifications")
	case pq.ListenerEventDisconnected:
		nl.logger.Printf("Disconnected from PostgreSQL: %v", err)
	case pq.ListenerEventReconnected:
		nl.logger.Printf("Reconnected to PostgreSQL")
		// Re-subscribe to all channels after reconnection
		nl.resubscribeAll()
	case pq.ListenerEventConnectionAttemptFailed:
		nl.logger.Printf("Connection attempt failed: %v", err)
	}
}

// resubscribeAll re-subscribes to all channels after a reconnection
func (nl *NotificationListener) resubscribeAll() {
	channels := nl.subscriptions.GetChannels()
	for _, channel := range channels {
		if err := nl.listener.Listen(channel); err != nil {
			nl.logger.Printf("Failed to re-subscribe to channel %s: %v", channel, err)
		}
	}
}

// Start begins the notification processing loop. Safe to call more than
// once; only the first call spawns the loop.
func (nl *NotificationListener) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt64(&nl.started, 0, 1) {
		return
	}
	go nl.listenLoop(ctx)
}

// listenLoop processes incoming notifications
func (nl *NotificationListener) listenLoop(ctx context.Context) {
	defer nl.logger.Printf("Notification listener stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-nl.done:
			return
		case notification := <-nl.listener.Notify:
			if notification == nil {
				// Listener was closed
				return
			}

			// Process the notification
			if err := nl.subscriptions.HandleNotification(notification.Channel, notification.Extra); err != nil {
				nl.logger.Printf("Error handling notification: %v", err)
			}

		case <-time.After(90 * time.Second):
			// Periodic ping to keep connection alive
			go func() {
				if err := nl.listener.Ping(); err != nil {
					nl.logger.Printf("Ping failed: %v", err)
				}
			}()
		}
	}
}

// SubscribeToCase subscribes to notifications for a specific conflict case
func (nl *NotificationListener) SubscribeToCase(caseID string, handler ResolutionHandler) error {
	if atomic.LoadInt64(&nl.closed) == 1 {
		return fmt.Errorf("listener is closed")
	}

	channelName := "case_" + caseID

	// Add to subscription manager
	nl.subscriptions.Subscribe(channelName, handler)

	// Listen on the PostgreSQL channel
	if err := nl.listener.Listen(channelName); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", channelName, err)
	}

	nl.logger.Printf("Subscribed to case: %s", caseID)
	return nil
}

// SubscribeToAll subscribes to all resolution notifications via the
// global channel.
func (nl *NotificationListener) SubscribeToAll(handler ResolutionHandler) error {
	if atomic.LoadInt64(&nl.closed) == 1 {
		return fmt.Errorf("listener is closed")
	}

	// Add to subscription manager
	nl.subscriptions.Subscribe(nl.globalChannel, handler)

	// Listen on the global channel
	if err := nl.listener.Listen(nl.globalChannel); err != nil {
		return fmt.Errorf("failed to listen on global channel: %w", err)
	}

	nl.logger.Printf("Subscribed to all resolutions")
	return nil
}

// SubscribeToDecision subscribes to resolutions that ended in a specific
// decision, e.g. tailing the manual_review backlog. Filtering happens on
// the client side over the global channel.
func (nl *NotificationListener) SubscribeToDecision(decision string, handler ResolutionHandler) error {
	filteredHandler := func(n ResolutionNotification) error {
		if n.Decision == decision {
			return handler(n)
		}
		return nil // Skip resolutions with other outcomes
	}

	return nl.SubscribeToAll(filteredHandler)
}

// UnsubscribeFromCase unsubscribes from a specific case's channel
func (nl *NotificationListener) UnsubscribeFromCase(caseID string) error {
	channelName := "case_" + caseID

	// Remove from subscription manager
	nl.subscriptions.Unsubscribe(channelName)

	// Stop listening on the PostgreSQL channel
	if err := nl.listener.Unlisten(channelName); err != nil {
		return fmt.Errorf("failed to unlisten from channel %s: %w", channelName, err)
	}

	nl.logger.Printf("Unsubscribed from case: %s", caseID)
	return nil
}

// UnsubscribeFromAll unsubscribes from the global channel
func (nl *NotificationListener) UnsubscribeFromAll() error {
	// Remove from subscription manager
	nl.subscriptions.Unsubscribe(nl.globalChannel)

	// Stop listening on the global channel
	if err := nl.listener.Unlisten(nl.globalChannel); err != nil {
		return fmt.Errorf("failed to unlisten from global channel: %w", err)
	}

	nl.logger.Printf("Unsubscribed from all resolutions")
	return nil
}

// GetActiveChannels returns the list of channels currently subscribed to
func (nl *NotificationListener) GetActiveChannels() []string {
	return nl.subscriptions.GetChannels()
}

// IsConnected returns whether the listener is connected to PostgreSQL
func (nl *NotificationListener) IsConnected() bool {
	return nl.listener.Ping() == nil
}

// Close shuts down the notification listener
func (nl *NotificationListener) Close() error {
	if !atomic.CompareAndSwapInt64(&nl.closed, 0, 1) {
		return nil // Already closed
	}

	close(nl.done)
	return nl.listener.Close()
}

// RealtimeAuditStore combines the audit store with a notification
// listener, so resolutions recorded by any node can be observed live.
type RealtimeAuditStore struct {
	*AuditStore
}

// NewRealtimeAuditStore creates an audit store with LISTEN/NOTIFY support.
func NewRealtimeAuditStore(config *Config) (*RealtimeAuditStore, error) {
	store, err := New(config)
	if err != nil {
		return nil, err
	}

	listener, err := newNotificationListener(
		config.ConnectionString,
		store.tableName+"_global",
		config.MinReconnectInterval,
		config.MaxReconnectInterval,
		config.Logger,
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create notification listener: %w", err)
	}
	store.listener = listener

	return &RealtimeAuditStore{AuditStore: store}, nil
}

// SubscribeToCase subscribes to live resolutions for a specific conflict case
func (r *RealtimeAuditStore) SubscribeToCase(ctx context.Context, caseID string, handler ResolutionHandler) error {
	r.listener.Start(ctx)
	return r.listener.SubscribeToCase(caseID, handler)
}

// SubscribeToAll subscribes to all live resolutions recorded in this store
func (r *RealtimeAuditStore) SubscribeToAll(ctx context.Context, handler ResolutionHandler) error {
	r.listener.Start(ctx)
	return r.listener.SubscribeToAll(handler)
}

// SubscribeToDecision subscribes to live resolutions with a specific
// decision, e.g. every conflict escalated to manual review.
func (r *RealtimeAuditStore) SubscribeToDecision(ctx context.Context, decision string, handler ResolutionHandler) error {
	r.listener.Start(ctx)
	return r.listener.SubscribeToDecision(decision, handler)
}

// UnsubscribeFromCase stops notifications for a specific case
func (r *RealtimeAuditStore) UnsubscribeFromCase(caseID string) error {
	return r.listener.UnsubscribeFromCase(caseID)
}

// GetActiveSubscriptions returns the channels currently subscribed to
func (r *RealtimeAuditStore) GetActiveSubscriptions() []string {
	return r.listener.GetActiveChannels()
}

// IsListenerConnected reports whether the notification listener is connected
func (r *RealtimeAuditStore) IsListenerConnected() bool {
	return r.listener.IsConnected()
}
