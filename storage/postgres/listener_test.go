package postgres

import (
	"fmt"
	"sort"
	"testing"
	"time"
)

func TestSubscriptionManager(t *testing.T) {
	sm := NewSubscriptionManager()

	var caseHits, globalHits int
	sm.Subscribe("case_t1", func(n ResolutionNotification) error {
		caseHits++
		return nil
	})
	sm.Subscribe("resolutions_global", func(n ResolutionNotification) error {
		globalHits++
		return nil
	})

	channels := sm.GetChannels()
	sort.Strings(channels)
	if len(channels) != 2 || channels[0] != "case_t1" || channels[1] != "resolutions_global" {
		t.Fatalf("unexpected channels: %v", channels)
	}

	payload := `{"seq":7,"id":"res-1","case_id":"t1","entity_type":"task","decision":"merge","recorded_at":1773999000000000000}`
	if err := sm.HandleNotification("case_t1", payload); err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if caseHits != 1 || globalHits != 0 {
		t.Errorf("expected only the case handler to fire: case=%d global=%d", caseHits, globalHits)
	}

	// Channels without handlers are ignored
	if err := sm.HandleNotification("case_other", payload); err != nil {
		t.Errorf("notification for unsubscribed channel should be a no-op, got: %v", err)
	}

	sm.Unsubscribe("case_t1")
	if err := sm.HandleNotification("case_t1", payload); err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if caseHits != 1 {
		t.Errorf("handler fired after unsubscribe: %d", caseHits)
	}
}

func TestSubscriptionManagerBadPayload(t *testing.T) {
	sm := NewSubscriptionManager()
	sm.Subscribe("case_t1", func(n ResolutionNotification) error { return nil })

	if err := sm.HandleNotification("case_t1", "{not json"); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestSubscriptionManagerHandlerErrorsDoNotStopOthers(t *testing.T) {
	sm := NewSubscriptionManager()

	var secondCalled bool
	sm.Subscribe("case_t1", func(n ResolutionNotification) error {
		return fmt.Errorf("handler failure")
	})
	sm.Subscribe("case_t1", func(n ResolutionNotification) error {
		secondCalled = true
		return nil
	})

	payload := `{"seq":1,"id":"res-1","case_id":"t1","entity_type":"task","decision":"merge","recorded_at":0}`
	if err := sm.HandleNotification("case_t1", payload); err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if !secondCalled {
		t.Error("second handler should run despite first handler's error")
	}
}

func TestResolutionNotificationRecorded(t *testing.T) {
	ts := time.Date(2026, time.March, 14, 9, 30, 0, 123456789, time.UTC)
	n := ResolutionNotification{RecordedAt: ts.UnixNano()}

	if !n.Recorded().Equal(ts) {
		t.Errorf("expected %v, got %v", ts, n.Recorded())
	}
}
