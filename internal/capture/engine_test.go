package capture_test

import (
	"sync"
	"testing"
	"time"

	"github.com/care/screenshare/internal/capture"
	"github.com/care/screenshare/internal/screensource"
)

func newTestEngine(t *testing.T) *capture.Engine {
	t.Helper()
	capture.Shutdown() // ensure clean singleton state between tests
	src := screensource.NewMockSource(screensource.Size{Width: 64, Height: 48})
	e, err := capture.Initialize(src, screensource.Size{Width: 1920, Height: 1080})
	if err != nil {
		t.Fatalf("Initialize() err = %v", err)
	}
	t.Cleanup(capture.Shutdown)
	return e
}

func TestSubscribeStartsAndUnsubscribeStopsLoop(t *testing.T) {
	e := newTestEngine(t)

	var mu sync.Mutex
	received := 0
	unsubscribe := e.Subscribe(func(d capture.Delivery) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := received
		mu.Unlock()
		if got > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	got := received
	mu.Unlock()
	if got == 0 {
		t.Fatalf("received no deliveries after subscribing")
	}

	unsubscribe()
	unsubscribe() // idempotent, must not panic
}

func TestFanOutOrderAndExactlyOnce(t *testing.T) {
	e := newTestEngine(t)

	var mu sync.Mutex
	var order []int
	counts := make([]int, 3)

	var unsubs []func()
	for i := 0; i < 3; i++ {
		idx := i
		unsub := e.Subscribe(func(d capture.Delivery) {
			mu.Lock()
			order = append(order, idx)
			counts[idx]++
			mu.Unlock()
		})
		unsubs = append(unsubs, unsub)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(order) >= 3
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 3 {
		t.Fatalf("not all subscribers received a delivery: order=%v", order)
	}
	// Within the first delivery round, subscribers fire in subscription order.
	firstRound := order[:3]
	for i, v := range firstRound {
		if v != i {
			t.Errorf("firstRound[%d] = %d, want %d (subscription order)", i, v, i)
		}
	}
	// The mock source repeats an identical frame, so dedup lets exactly
	// one frame through: each subscriber must have seen it exactly once.
	for i, c := range counts {
		if c != 1 {
			t.Errorf("counts[%d] = %d, want 1 (exactly once)", i, c)
		}
	}

	for _, unsub := range unsubs {
		unsub()
	}
}

func TestUpdateQualityRejectsOutOfRangeFieldsIndependently(t *testing.T) {
	e := newTestEngine(t)
	before := e.Config()

	tooWide := 5000
	goodFPS := 10
	e.UpdateQuality(&tooWide, nil, &goodFPS)

	after := e.Config()
	if after.Width != before.Width {
		t.Errorf("out-of-range width was applied: got %d, want unchanged %d", after.Width, before.Width)
	}
	if after.FPS != goodFPS {
		t.Errorf("in-range fps was not applied: got %d, want %d", after.FPS, goodFPS)
	}
}

func TestDeliveryArrivesWithinWatchdogInterval(t *testing.T) {
	e := newTestEngine(t)

	var mu sync.Mutex
	received := 0
	unsubscribe := e.Subscribe(func(d capture.Delivery) {
		mu.Lock()
		received++
		mu.Unlock()
	})
	defer unsubscribe()

	time.Sleep(capture.WatchdogCheckInterval + 200*time.Millisecond)

	mu.Lock()
	got := received
	mu.Unlock()
	if got == 0 {
		t.Fatalf("received no deliveries across a watchdog check interval")
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	e := newTestEngine(t)
	_ = e

	src := screensource.NewMockSource(screensource.Size{Width: 64, Height: 48})
	_, err := capture.Initialize(src, screensource.Size{Width: 1920, Height: 1080})
	if err == nil {
		t.Fatalf("Initialize() while already initialized: err = nil, want error")
	}
}
