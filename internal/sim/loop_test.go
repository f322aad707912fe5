package sim

import (
	"sync/atomic"
	"testing"
	"time"

	"haptic-world/internal/bus"
	"haptic-world/internal/telemetry"
)

// countingStepper считает тики и проверяет поток исполнения
type countingStepper struct {
	steps   atomic.Uint64
	initRan atomic.Bool
	cleaned atomic.Bool
	initErr error
}

func (c *countingStepper) Init() error {
	c.initRan.Store(true)
	return c.initErr
}
func (c *countingStepper) Step(dt float64) { c.steps.Add(1) }
func (c *countingStepper) Cleanup()        { c.cleaned.Store(true) }

func TestLoopRunsAndStops(t *testing.T) {
	tm := telemetry.NewManager()
	b := bus.New(tm)
	l := NewLoop(NamePhysics, time.Millisecond, true, b, tm, 64)
	st := &countingStepper{}
	l.SetStepper(st)

	l.Start()
	time.Sleep(50 * time.Millisecond)
	l.Stop()

	if !st.initRan.Load() {
		t.Error("Expected Init to run on the worker")
	}
	if st.steps.Load() == 0 {
		t.Error("Expected at least one tick")
	}
	if !st.cleaned.Load() {
		t.Error("Expected Cleanup after Stop")
	}
	if l.Running() {
		t.Error("Expected loop to report stopped")
	}
}

func TestLoopInitFailureMarksDone(t *testing.T) {
	tm := telemetry.NewManager()
	b := bus.New(tm)
	l := NewLoop(NameHaptics, time.Millisecond, true, b, tm, 64)
	st := &countingStepper{initErr: errDevice}
	l.SetStepper(st)

	l.Start()
	time.Sleep(20 * time.Millisecond)
	if st.steps.Load() != 0 {
		t.Error("Expected no ticks after failed Init")
	}
	if st.cleaned.Load() {
		t.Error("Expected no Cleanup after failed Init")
	}
	l.Stop()
}

var errDevice = &deviceError{}

type deviceError struct{}

func (*deviceError) Error() string { return "device absent" }

func TestPostRunsOnLoopGoroutine(t *testing.T) {
	tm := telemetry.NewManager()
	b := bus.New(tm)
	l := NewLoop(NamePhysics, time.Millisecond, true, b, tm, 64)
	l.SetStepper(&countingStepper{})
	l.Start()
	defer l.Stop()

	onLoop := make(chan bool, 1)
	l.Post(func() { onLoop <- l.OnLoop() })
	select {
	case got := <-onLoop:
		if !got {
			t.Error("Expected posted function to run on the loop goroutine")
		}
	case <-time.After(time.Second):
		t.Fatal("Posted function never ran")
	}

	if l.OnLoop() {
		t.Error("Expected test goroutine to be off the loop")
	}
}

func TestApplyReceivesPathMessages(t *testing.T) {
	tm := telemetry.NewManager()
	b := bus.New(tm)
	l := NewLoop(NameVisual, time.Millisecond, true, b, tm, 64)
	l.SetStepper(&countingStepper{})

	got := make(chan string, 1)
	l.SetApply(func(m bus.Message) { got <- m.Path })
	l.Start()
	defer l.Stop()

	b.Send(NameVisual, false, bus.Message{Path: "/touch", Args: []interface{}{"s1"}})
	select {
	case path := <-got:
		if path != "/touch" {
			t.Errorf("Expected /touch, got %q", path)
		}
	case <-time.After(time.Second):
		t.Fatal("Message never applied")
	}
}

func TestStoppedLoopUnregistersFromBus(t *testing.T) {
	tm := telemetry.NewManager()
	b := bus.New(tm)
	l := NewLoop(NamePhysics, time.Millisecond, true, b, tm, 64)
	l.SetStepper(&countingStepper{})
	l.Start()
	l.Stop()

	if err := b.Send(NamePhysics, false, bus.Message{Fn: func() {}}); err == nil {
		t.Error("Expected send to a stopped simulation to fail")
	}
}
