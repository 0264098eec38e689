package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matgreaves/gantry/engine"
)

func TestEventLog_PublishAndEvents(t *testing.T) {
	log := engine.NewEventLog()

	log.Publish(engine.Event{Type: engine.EventServiceStarted, Service: "poa-node-arthur"})
	log.Publish(engine.Event{Type: engine.EventServiceHealthy, Service: "poa-node-arthur"})

	events := log.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Errorf("sequence numbers: got %d, %d", events[0].Seq, events[1].Seq)
	}
	if events[0].Type != engine.EventServiceStarted {
		t.Errorf("event 0 type: got %q", events[0].Type)
	}
	if events[1].Type != engine.EventServiceHealthy {
		t.Errorf("event 1 type: got %q", events[1].Type)
	}
}

func TestEventLog_PublishSetsTimestamp(t *testing.T) {
	log := engine.NewEventLog()

	before := time.Now()
	log.Publish(engine.Event{Type: engine.EventStackUp})
	after := time.Now()

	events := log.Events()
	if events[0].Timestamp.Before(before) || events[0].Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", events[0].Timestamp, before, after)
	}
}

func TestEventLog_Since(t *testing.T) {
	log := engine.NewEventLog()

	log.Publish(engine.Event{Type: engine.EventImagePulling, Image: "parity/parity:v2.5.0"})
	log.Publish(engine.Event{Type: engine.EventImagePulled, Image: "parity/parity:v2.5.0"})
	log.Publish(engine.Event{Type: engine.EventServiceStarted, Service: "poa-node-arthur"})

	events := log.Since(1)
	if len(events) != 2 {
		t.Fatalf("expected 2 events after seq 1, got %d", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Errorf("sequences: got %d, %d", events[0].Seq, events[1].Seq)
	}

	if got := log.Since(5); len(got) != 0 {
		t.Errorf("expected no events after seq 5, got %d", len(got))
	}
	if got := log.Since(0); len(got) != 3 {
		t.Errorf("expected all 3 events from seq 0, got %d", len(got))
	}
}

func TestEventLog_WaitFor_ExistingEvent(t *testing.T) {
	log := engine.NewEventLog()

	log.Publish(engine.Event{Type: engine.EventServiceHealthy, Service: "relay-headers-poa-to-rialto"})
	log.Publish(engine.Event{Type: engine.EventServiceStarted, Service: "poa-exchange-tx-generator"})

	event, err := log.WaitFor(context.Background(), func(e engine.Event) bool {
		return e.Type == engine.EventServiceHealthy
	})
	if err != nil {
		t.Fatal(err)
	}
	if event.Service != "relay-headers-poa-to-rialto" {
		t.Errorf("service: got %q", event.Service)
	}
}

func TestEventLog_WaitFor_FutureEvent(t *testing.T) {
	log := engine.NewEventLog()

	var wg sync.WaitGroup
	wg.Add(1)

	var got engine.Event
	var gotErr error

	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		got, gotErr = log.WaitFor(ctx, func(e engine.Event) bool {
			return e.Type == engine.EventStackUp
		})
	}()

	// Give the goroutine time to start waiting.
	time.Sleep(10 * time.Millisecond)

	log.Publish(engine.Event{Type: engine.EventServiceStarted, Service: "grafana-dashboard"})
	log.Publish(engine.Event{Type: engine.EventStackUp, Project: "bridge"})

	wg.Wait()

	if gotErr != nil {
		t.Fatal(gotErr)
	}
	if got.Project != "bridge" {
		t.Errorf("got event: type=%q project=%q", got.Type, got.Project)
	}
}

func TestEventLog_WaitFor_ContextCancelled(t *testing.T) {
	log := engine.NewEventLog()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := log.WaitFor(ctx, func(e engine.Event) bool {
		return e.Type == engine.EventStackUp // never published
	})

	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestEventLog_Subscribe_ReplayAndLive(t *testing.T) {
	log := engine.NewEventLog()

	log.Publish(engine.Event{Type: engine.EventServiceCreating, Service: "prometheus-metrics"})
	log.Publish(engine.Event{Type: engine.EventServiceStarted, Service: "prometheus-metrics"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := log.Subscribe(ctx, 0, nil)

	// Publish after subscribing.
	go func() {
		time.Sleep(10 * time.Millisecond)
		log.Publish(engine.Event{Type: engine.EventServiceHealthy, Service: "prometheus-metrics"})
	}()

	var events []engine.Event
	for i := 0; i < 3; i++ {
		select {
		case e := <-ch:
			events = append(events, e)
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
	}

	if events[0].Seq != 1 || events[1].Seq != 2 || events[2].Seq != 3 {
		t.Errorf("sequences: got %d, %d, %d", events[0].Seq, events[1].Seq, events[2].Seq)
	}
	if events[2].Type != engine.EventServiceHealthy {
		t.Errorf("live event type: got %q", events[2].Type)
	}
}

func TestEventLog_Subscribe_Filter(t *testing.T) {
	log := engine.NewEventLog()

	log.Publish(engine.Event{Type: engine.EventServiceStarted, Service: "a"})
	log.Publish(engine.Event{Type: engine.EventServiceFailed, Service: "a", Error: "exit 1"})
	log.Publish(engine.Event{Type: engine.EventServiceStarted, Service: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch := log.Subscribe(ctx, 0, func(e engine.Event) bool {
		return e.Type == engine.EventServiceFailed
	})

	select {
	case e := <-ch:
		if e.Type != engine.EventServiceFailed || e.Error != "exit 1" {
			t.Errorf("got type=%q error=%q", e.Type, e.Error)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for filtered event")
	}
}

func TestEventLog_Subscribe_ClosedOnCancel(t *testing.T) {
	log := engine.NewEventLog()

	ctx, cancel := context.WithCancel(context.Background())
	ch := log.Subscribe(ctx, 0, nil)

	cancel()

	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed as expected
			}
		case <-timer.C:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestEventLog_ConcurrentPublish(t *testing.T) {
	log := engine.NewEventLog()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)

	for i := range n {
		go func(i int) {
			defer wg.Done()
			log.Publish(engine.Event{
				Type:    engine.EventServiceStarted,
				Service: fmt.Sprintf("svc-%d", i),
			})
		}(i)
	}

	wg.Wait()

	events := log.Events()
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}

	// Sequence numbers must be unique and cover 1..n.
	seen := make(map[uint64]bool)
	for _, e := range events {
		if seen[e.Seq] {
			t.Errorf("duplicate seq: %d", e.Seq)
		}
		seen[e.Seq] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[uint64(i)] {
			t.Errorf("missing seq: %d", i)
		}
	}
}
