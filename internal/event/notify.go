// Package event provides change notification between viewer components and
// the loop that owns all UI-visible state.
//
// Notifier implements an observer pattern keyed by dot-separated topics.
// Loop is a single goroutine that runs posted closures in order; background
// workers hand results to the UI by posting into it.
package event

import (
	"sync"
)

// Topics published by the viewer.
const (
	// TopicSelectionChanged carries a selection.Change.
	TopicSelectionChanged = "selection.changed"

	// TopicCacheSize carries the cache byte size as int64.
	TopicCacheSize = "cache.size"

	// TopicPageApplied carries the index of a page whose bitmap was applied.
	TopicPageApplied = "page.applied"

	// TopicPageFailed carries the index of a page that failed to render.
	TopicPageFailed = "page.failed"

	// TopicConfigReloaded is published after a configuration file change.
	TopicConfigReloaded = "config.reloaded"
)

// Event is a single notification.
type Event struct {
	// Topic is the dot-separated topic name.
	Topic string

	// Payload is topic specific and may be nil.
	Payload any

	// Source identifies the publishing component.
	Source string
}

// Observer is called when a matching event is published.
type Observer func(ev Event)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	topic    string
	notifier *Notifier
}

// Topic returns the subscribed topic, empty for global subscriptions.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// Notifier manages topic subscriptions.
type Notifier struct {
	mu sync.RWMutex

	// Observers that receive every event
	global map[uint64]Observer

	// Topic-specific observers
	topics map[string]map[uint64]Observer

	nextID uint64

	async  bool
	buffer chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAsync enables asynchronous delivery on a dedicated goroutine.
func WithAsync(bufferSize int) Option {
	return func(n *Notifier) {
		if bufferSize > 0 {
			n.async = true
			n.buffer = make(chan Event, bufferSize)
		}
	}
}

// NewNotifier creates a new Notifier. Delivery is synchronous unless
// WithAsync is given.
func NewNotifier(opts ...Option) *Notifier {
	n := &Notifier{
		global: make(map[uint64]Observer),
		topics: make(map[string]map[uint64]Observer),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.async {
		n.wg.Add(1)
		go n.processAsync()
	}
	return n
}

// Subscribe registers an observer for all events.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.global[id] = observer
	return &Subscription{id: id, notifier: n}
}

// SubscribeTopic registers an observer for a topic and its children.
// Subscribing to "page" receives "page.applied" and "page.failed".
func (n *Notifier) SubscribeTopic(topic string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	if n.topics[topic] == nil {
		n.topics[topic] = make(map[uint64]Observer)
	}
	n.topics[topic][id] = observer
	return &Subscription{id: id, topic: topic, notifier: n}
}

// Publish sends an event to all matching observers.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	n.mu.RUnlock()

	if n.async {
		select {
		case n.buffer <- ev:
		case <-n.done:
		}
		return
	}
	n.deliver(ev)
}

// PublishTopic is a convenience wrapper around Publish.
func (n *Notifier) PublishTopic(topic string, payload any, source string) {
	n.Publish(Event{Topic: topic, Payload: payload, Source: source})
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	count := len(n.global)
	for _, obs := range n.topics {
		count += len(obs)
	}
	return count
}

// Close shuts down the notifier, delivering any buffered events first.
// It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.global, id)
	for topic, observers := range n.topics {
		delete(observers, id)
		if len(observers) == 0 {
			delete(n.topics, topic)
		}
	}
}

// deliver calls every matching observer outside the lock.
func (n *Notifier) deliver(ev Event) {
	n.mu.RLock()
	var observers []Observer
	for _, obs := range n.global {
		observers = append(observers, obs)
	}
	for topic, topicObs := range n.topics {
		if topic == ev.Topic || isParentTopic(topic, ev.Topic) {
			for _, obs := range topicObs {
				observers = append(observers, obs)
			}
		}
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(ev)
	}
}

func (n *Notifier) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case ev := <-n.buffer:
			n.deliver(ev)
		case <-n.done:
			for {
				select {
				case ev := <-n.buffer:
					n.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// isParentTopic reports whether parent is a proper prefix topic of child.
// e.g., "page" is parent of "page.applied".
func isParentTopic(parent, child string) bool {
	if parent == "" {
		return false
	}
	return len(child) > len(parent) && child[:len(parent)] == parent && child[len(parent)] == '.'
}
