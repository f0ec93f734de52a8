package playback

import (
	"testing"
	"testing/synctest"

	"go.uber.org/zap"
)

func TestHub_DeliversInRegistrationOrder(t *testing.T) {
	hub := NewHub(zap.NewNop())
	var order []string
	hub.Subscribe(ObserverFunc(func(Event) { order = append(order, "first") }))
	hub.Subscribe(ObserverFunc(func(Event) { order = append(order, "second") }))
	hub.Subscribe(ObserverFunc(func(Event) { order = append(order, "third") }))

	hub.Publish(Info{Text: "hi"})

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("got %d deliveries, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestHub_PanickingObserverIsIsolated(t *testing.T) {
	hub := NewHub(zap.NewNop())
	var got []Event
	hub.Subscribe(ObserverFunc(func(Event) { panic("observer bug") }))
	hub.Subscribe(ObserverFunc(func(e Event) { got = append(got, e) }))

	hub.Publish(Info{Text: "one"})
	hub.Publish(Info{Text: "two"})

	if len(got) != 2 {
		t.Fatalf("second observer got %d events, want 2", len(got))
	}
	if hub.Len() != 2 {
		t.Errorf("Len() = %d, want 2", hub.Len())
	}
}

func TestSubscription_Unsubscribe(t *testing.T) {
	hub := NewHub(nil)
	count := 0
	sub := hub.Subscribe(ObserverFunc(func(Event) { count++ }))

	hub.Publish(Info{})
	sub.Unsubscribe()
	sub.Unsubscribe()
	hub.Publish(Info{})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}

func TestSubscription_UnsubscribeKeepsOthers(t *testing.T) {
	hub := NewHub(nil)
	var got []string
	first := hub.Subscribe(ObserverFunc(func(Event) { got = append(got, "a") }))
	hub.Subscribe(ObserverFunc(func(Event) { got = append(got, "b") }))
	hub.Subscribe(ObserverFunc(func(Event) { got = append(got, "c") }))

	first.Unsubscribe()
	hub.Publish(Info{})

	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("got %v, want [b c]", got)
	}
}

func TestHub_UnsubscribeDuringPublish(t *testing.T) {
	hub := NewHub(nil)
	var sub *Subscription
	calls := 0
	sub = hub.Subscribe(ObserverFunc(func(Event) {
		calls++
		sub.Unsubscribe()
	}))

	hub.Publish(Info{})
	hub.Publish(Info{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe(ObserverFunc(func(Event) { t.Error("closed hub delivered an event") }))

	hub.Close()
	hub.Publish(Info{})
	sub.Unsubscribe()

	late := hub.Subscribe(ObserverFunc(func(Event) { t.Error("late subscriber received an event") }))
	hub.Publish(Info{})
	late.Unsubscribe()

	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}

func TestEventPump_PreservesOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		hub := NewHub(nil)
		rec := &recorder{}
		hub.Subscribe(rec)
		pump := newEventPump(hub)

		for i := range 100 {
			pump.send(VolumeChange{Volume: i})
		}
		pump.close()
		<-pump.done

		events := rec.Events()
		if len(events) != 100 {
			t.Fatalf("got %d events, want 100", len(events))
		}
		for i, e := range events {
			if v := e.(VolumeChange).Volume; v != i {
				t.Fatalf("events[%d].Volume = %d, want %d", i, v, i)
			}
		}
		if hub.Len() != 0 {
			t.Errorf("hub not closed after pump drained")
		}
	})
}

func TestEventPump_DropsAfterClose(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		hub := NewHub(nil)
		rec := &recorder{}
		hub.Subscribe(rec)
		pump := newEventPump(hub)

		pump.send(Info{Text: "before"})
		pump.close()
		pump.send(Info{Text: "after"})
		<-pump.done

		if got := infoTexts(rec.Events()); len(got) != 1 || got[0] != "before" {
			t.Errorf("got %v, want [before]", got)
		}
	})
}

func TestEventPump_ObserverMayCallBack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		hub := NewHub(nil)
		pump := newEventPump(hub)
		seen := 0
		hub.Subscribe(ObserverFunc(func(e Event) {
			seen++
			if _, ok := e.(Info); ok {
				pump.send(VolumeChange{Volume: 1})
			}
		}))

		pump.send(Info{})
		synctest.Wait()
		pump.close()
		<-pump.done

		if seen != 2 {
			t.Errorf("seen = %d, want 2", seen)
		}
	})
}
