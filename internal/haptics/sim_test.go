package haptics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/bus"
	"haptic-world/internal/osc"
	"haptic-world/internal/sim"
	"haptic-world/internal/telemetry"
	"haptic-world/internal/world"
)

// newTestSim собирает haptic симуляцию без запуска цикла: Step
// вызывается вручную на потоке теста
func newTestSim(t *testing.T) (*Sim, *SimulatedDevice) {
	t.Helper()
	tm := telemetry.NewManager()
	b := bus.New(tm)
	loop := sim.NewLoop(sim.NameHaptics, time.Millisecond, true, b, tm, 64)
	mgr := world.NewManager()
	dev := NewSimulatedDevice()
	out := osc.NewSender("localhost", 0)
	s := New(loop, mgr, tm, out, dev, new(atomic.Bool), 10*time.Millisecond, time.Millisecond, 300)
	return s, dev
}

func addObject(s *Sim, o *world.Object) {
	s.apply(bus.Message{Path: "/object/create", Args: []interface{}{o}})
}

func TestGrabExclusivity(t *testing.T) {
	s, _ := newTestSim(t)
	a := world.NewObject("a", world.KindSphere)
	b := world.NewObject("b", world.KindSphere)
	addObject(s, a)
	addObject(s, b)

	s.Grab(a)
	if s.Grabbed() != a {
		t.Fatal("Expected a to be grabbed")
	}
	if s.proxy.colliders["a"].enabled {
		t.Error("Expected grabbed object to be haptically transparent")
	}

	// захват b отпускает a
	s.Grab(b)
	if s.Grabbed() != b {
		t.Fatal("Expected b to be grabbed")
	}
	if !s.proxy.colliders["a"].enabled {
		t.Error("Expected released object to contact again")
	}
	if s.proxy.colliders["b"].enabled {
		t.Error("Expected newly grabbed object to be transparent")
	}

	s.Grab(nil)
	if s.Grabbed() != nil {
		t.Error("Expected release to clear the grab")
	}
	if !s.proxy.colliders["b"].enabled {
		t.Error("Expected released object to contact again")
	}
}

func TestGrabbedObjectSpringForce(t *testing.T) {
	s, dev := newTestSim(t)
	a := world.NewObject("a", world.KindSphere)
	addObject(s, a)

	// объект в начале координат, курсор поведем в (1,0,0):
	// калибровка сперва видит центр, затем крайние точки
	dev.SetPose(mgl64.Vec3{0, 0, 0})
	s.Step(0.001)
	dev.SetPose(mgl64.Vec3{-1, 0, 0})
	s.Step(0.001)
	dev.SetPose(mgl64.Vec3{1, 0, 0})

	s.Grab(a)
	s.Step(0.001)
	f := dev.Force()
	if f.X() >= 0 {
		t.Errorf("Expected grab spring to pull toward the object, got %v", f)
	}
	if f.Len() == 0 {
		t.Error("Expected nonzero grab force")
	}

	// отпускание гасит силу на следующем тике
	s.Grab(nil)
	s.Step(0.001)
	if got := dev.Force(); got.Len() != 0 {
		t.Errorf("Expected zero force after release, got %v", got)
	}
}

func TestExtraForceDecay(t *testing.T) {
	s, dev := newTestSim(t)

	if s.extraDecay != 20 {
		t.Fatalf("Expected decay of 20 ticks for 10ms/1ms steps, got %d", s.extraDecay)
	}

	s.ExtraForce(mgl64.Vec3{0, 0, 1})
	for i := 0; i < 20; i++ {
		s.Step(0.001)
		if dev.Force().Z() == 0 {
			t.Fatalf("Expected overlay force at tick %d", i)
		}
	}
	// после 20 тиков наложение погасло
	s.Step(0.001)
	if dev.Force().Z() != 0 {
		t.Error("Expected overlay force to decay after 20 ticks")
	}
}

func TestContactEmitsSingleEpisodeEvent(t *testing.T) {
	s, dev := newTestSim(t)
	a := world.NewObject("a", world.KindSphere)
	a.Radius.SetQuiet(0.5)
	a.Collide.SetQuiet(true)
	addObject(s, a)

	// инструмент в центре сферы: контакт продолжается много тиков
	dev.SetPose(mgl64.Vec3{0.1, 0, 0})
	first := s.tm.Collisions.Load()
	for i := 0; i < 50; i++ {
		s.Step(0.001)
	}
	if got := s.tm.Collisions.Load() - first; got != 1 {
		t.Errorf("Expected exactly one collision event per episode, got %d", got)
	}
}

func TestDestroyGrabbedObjectReleasesGrab(t *testing.T) {
	s, _ := newTestSim(t)
	a := world.NewObject("a", world.KindSphere)
	addObject(s, a)
	s.Grab(a)

	s.apply(bus.Message{Path: "/object/destroy", Args: []interface{}{
		[]*world.Object{a}, []*world.Constraint{},
	}})
	if s.Grabbed() != nil {
		t.Error("Expected destroying the grabbed object to release the grab")
	}
}
