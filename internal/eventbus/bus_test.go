package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	mem, unsubMem := b.Subscribe(4, TypeMembershipChanged)
	defer unsubMem()

	b.Publish(Event{Type: TypeSessionConnected})
	b.Publish(Event{Type: TypeMembershipChanged, Data: "x"})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(mem); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	e := <-mem
	if e.Type != TypeMembershipChanged || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if len(ch) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(ch))
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "c"})
}
