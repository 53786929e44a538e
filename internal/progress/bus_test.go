package progress

import (
	"testing"

	"github.com/caselight/caselight/internal/types"
)

func TestPublishOrdering(t *testing.T) {
	b := NewBus(16, nil)
	sub := b.Subscribe("job-1")
	defer b.Unsubscribe(sub)

	b.Publish("job-1", types.EventJobStarted, map[string]any{"caseName": "smith_v_jones"})
	b.Publish("job-1", types.EventDocumentFound, map[string]any{"fileName": "a.pdf"})
	b.Publish("job-1", types.EventJobCompleted, nil)

	want := []types.EventType{types.EventJobStarted, types.EventDocumentFound, types.EventJobCompleted}
	for i, wt := range want {
		ev := <-sub.C
		if ev.Type != wt {
			t.Errorf("event %d type = %s, want %s", i, ev.Type, wt)
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
	if got := b.LastSeq("job-1"); got != 3 {
		t.Errorf("LastSeq = %d, want 3", got)
	}
}

func TestPublishReturnsEvent(t *testing.T) {
	b := NewBus(0, nil)
	ev := b.Publish("job-1", types.EventJobStarted, map[string]any{"k": "v"})
	if ev.Seq != 1 || ev.Type != types.EventJobStarted || ev.TS.IsZero() {
		t.Errorf("event = %+v", ev)
	}
	if ev.Payload["k"] != "v" {
		t.Errorf("payload = %v", ev.Payload)
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := NewBus(4, nil)
	s1 := b.Subscribe("job-1")
	s2 := b.Subscribe("job-2")
	defer b.Unsubscribe(s1)
	defer b.Unsubscribe(s2)

	b.Publish("job-1", types.EventJobStarted, nil)
	b.Publish("job-1", types.EventJobCompleted, nil)
	b.Publish("job-2", types.EventJobStarted, nil)

	if got := b.LastSeq("job-1"); got != 2 {
		t.Errorf("job-1 LastSeq = %d, want 2", got)
	}
	if got := b.LastSeq("job-2"); got != 1 {
		t.Errorf("job-2 LastSeq = %d, want 1", got)
	}
	select {
	case ev := <-s2.C:
		if ev.Seq != 1 {
			t.Errorf("cross-topic seq leak: %+v", ev)
		}
	default:
		t.Error("job-2 subscriber got nothing")
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	b := NewBus(2, nil)
	slow := b.Subscribe("job-1")
	fast := b.Subscribe("job-1")

	// Fill the slow subscriber's buffer without draining, then overflow it.
	for i := 0; i < 3; i++ {
		b.Publish("job-1", types.EventSegmentStored, nil)
		// Keep the fast subscriber drained so only the slow one overflows.
		<-fast.C
	}

	// The slow subscriber got the first two events, then its channel closed.
	for i := 0; i < 2; i++ {
		if _, ok := <-slow.C; !ok {
			t.Fatalf("event %d missing before the drop", i)
		}
	}
	if _, ok := <-slow.C; ok {
		t.Error("slow subscriber channel not closed after overflow")
	}

	// Publishing continues for the survivors.
	b.Publish("job-1", types.EventJobCompleted, nil)
	if ev := <-fast.C; ev.Type != types.EventJobCompleted {
		t.Errorf("fast subscriber got %s", ev.Type)
	}
	b.Unsubscribe(fast)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(4, nil)
	sub := b.Subscribe("job-1")
	b.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("channel not closed on unsubscribe")
	}
	// Idempotent, including after a drop.
	b.Unsubscribe(sub)
	b.Publish("job-1", types.EventJobStarted, nil)
}

func TestLastSeqUnknownTopic(t *testing.T) {
	b := NewBus(4, nil)
	if got := b.LastSeq("never-published"); got != 0 {
		t.Errorf("LastSeq = %d, want 0", got)
	}
}

func TestReset(t *testing.T) {
	b := NewBus(4, nil)
	b.Publish("job-1", types.EventJobCompleted, nil)
	b.Reset("job-1")
	if got := b.LastSeq("job-1"); got != 0 {
		t.Errorf("LastSeq after reset = %d, want 0", got)
	}

	t.Run("subscribed topics survive", func(t *testing.T) {
		sub := b.Subscribe("job-2")
		defer b.Unsubscribe(sub)
		b.Publish("job-2", types.EventJobStarted, nil)
		b.Reset("job-2")
		if got := b.LastSeq("job-2"); got != 1 {
			t.Errorf("LastSeq = %d, want 1", got)
		}
	})
}
