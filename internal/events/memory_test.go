package events

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPublisherDeliversToSubscribers(t *testing.T) {
	p := NewMemoryPublisher()
	ch, cancel := p.Subscribe("bill-1")
	defer cancel()

	event := BillUpdated{BillID: "bill-1", Version: 2, ActorID: "user-1", OccurredAt: time.Now()}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-ch:
		if got.BillID != "bill-1" || got.Version != 2 || got.ActorID != "user-1" {
			t.Errorf("received %+v, want %+v", got, event)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestMemoryPublisherScopesByBill(t *testing.T) {
	p := NewMemoryPublisher()
	ch, cancel := p.Subscribe("bill-1")
	defer cancel()

	if err := p.Publish(context.Background(), BillUpdated{BillID: "bill-2", Version: 1}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-ch:
		t.Errorf("received event for another bill: %+v", got)
	default:
	}
}

func TestMemoryPublisherCancelClosesChannel(t *testing.T) {
	p := NewMemoryPublisher()
	ch, cancel := p.Subscribe("bill-1")
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Publishing after cancel must not panic or deliver.
	if err := p.Publish(context.Background(), BillUpdated{BillID: "bill-1", Version: 1}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// Cancel is idempotent.
	cancel()
}

func TestMemoryPublisherSkipsFullSubscriber(t *testing.T) {
	p := NewMemoryPublisher()
	ch, cancel := p.Subscribe("bill-1")
	defer cancel()

	// Fill the subscriber's buffer, then publish once more; the extra event
	// is dropped and Publish must not block.
	for i := 0; i < cap(ch)+1; i++ {
		if err := p.Publish(context.Background(), BillUpdated{BillID: "bill-1", Version: int64(i)}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	var received int
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received != cap(ch) {
		t.Errorf("received %d events, want %d", received, cap(ch))
	}
}
