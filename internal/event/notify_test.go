package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifier_Subscribe(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	var received []Event
	n.Subscribe(func(ev Event) {
		received = append(received, ev)
	})

	n.PublishTopic(TopicCacheSize, int64(42), "pagecache")

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Topic != TopicCacheSize || received[0].Payload.(int64) != 42 {
		t.Errorf("unexpected event: %+v", received[0])
	}
	if received[0].Source != "pagecache" {
		t.Errorf("expected source 'pagecache', got '%s'", received[0].Source)
	}
}

func TestNotifier_SubscribeTopic(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	var exact, parent, other int
	n.SubscribeTopic(TopicPageApplied, func(Event) { exact++ })
	n.SubscribeTopic("page", func(Event) { parent++ })
	n.SubscribeTopic("selection", func(Event) { other++ })

	n.PublishTopic(TopicPageApplied, 3, "scheduler")
	n.PublishTopic(TopicPageFailed, 4, "scheduler")

	if exact != 1 {
		t.Errorf("exact observer called %d times, want 1", exact)
	}
	if parent != 2 {
		t.Errorf("parent observer called %d times, want 2", parent)
	}
	if other != 0 {
		t.Errorf("unrelated observer called %d times", other)
	}
}

func TestNotifier_PrefixIsNotParent(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	called := false
	n.SubscribeTopic("pag", func(Event) { called = true })
	n.PublishTopic(TopicPageApplied, nil, "")

	if called {
		t.Error("'pag' must not match 'page.applied'")
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	count := 0
	sub := n.SubscribeTopic(TopicSelectionChanged, func(Event) { count++ })
	if sub.Topic() != TopicSelectionChanged {
		t.Errorf("Topic() = %q", sub.Topic())
	}

	n.PublishTopic(TopicSelectionChanged, nil, "")
	sub.Unsubscribe()
	n.PublishTopic(TopicSelectionChanged, nil, "")

	if count != 1 {
		t.Errorf("expected 1 call, got %d", count)
	}
	if n.Len() != 0 {
		t.Errorf("Len = %d after unsubscribe", n.Len())
	}
}

func TestNotifier_Async(t *testing.T) {
	n := NewNotifier(WithAsync(16))

	var mu sync.Mutex
	var topics []string
	n.Subscribe(func(ev Event) {
		mu.Lock()
		topics = append(topics, ev.Topic)
		mu.Unlock()
	})

	n.PublishTopic(TopicPageApplied, 0, "")
	n.PublishTopic(TopicPageApplied, 1, "")
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 2 {
		t.Errorf("expected 2 delivered events after Close, got %d", len(topics))
	}
}

func TestNotifier_PublishAfterClose(t *testing.T) {
	n := NewNotifier(WithAsync(4))
	var count atomic.Int32
	n.Subscribe(func(Event) { count.Add(1) })

	n.Close()
	n.Close()
	n.PublishTopic(TopicCacheSize, 0, "")

	time.Sleep(10 * time.Millisecond)
	if count.Load() != 0 {
		t.Error("events published after Close should be dropped")
	}
}
