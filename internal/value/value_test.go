package value

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// fakeLoop имитирует поток симуляции для проверки диспетчеризации
type fakeLoop struct {
	queued []func()
	onLoop bool
}

func (l *fakeLoop) Post(fn func()) { l.queued = append(l.queued, fn) }
func (l *fakeLoop) OnLoop() bool   { return l.onLoop }

func TestFloatSetDefersCallbackToTargetLoop(t *testing.T) {
	loop := &fakeLoop{}
	var f Float
	var got float64
	f.OnSet(loop, func(v float64) { got = v })

	f.Set(2.5)
	if f.Get() != 2.5 {
		t.Errorf("Expected stored value 2.5, got %f", f.Get())
	}
	if got != 0 {
		t.Error("Callback ran before target loop drained it")
	}
	if len(loop.queued) != 1 {
		t.Fatalf("Expected 1 queued callback, got %d", len(loop.queued))
	}
	loop.queued[0]()
	if got != 2.5 {
		t.Errorf("Expected callback value 2.5, got %f", got)
	}
}

func TestSetInlineWhenOnTargetLoop(t *testing.T) {
	loop := &fakeLoop{onLoop: true}
	var f Float
	var got float64
	f.OnSet(loop, func(v float64) { got = v })

	f.Set(1.0)
	if got != 1.0 {
		t.Error("Expected inline callback when caller is on the target loop")
	}
	if len(loop.queued) != 0 {
		t.Errorf("Expected no queued callbacks, got %d", len(loop.queued))
	}
}

func TestSetQuietSkipsCallback(t *testing.T) {
	loop := &fakeLoop{}
	var v Vec3
	v.OnSet(loop, func(mgl64.Vec3) { t.Error("Callback must not fire on SetQuiet") })

	v.SetQuiet(mgl64.Vec3{1, 2, 3})
	if len(loop.queued) != 0 {
		t.Errorf("Expected no queued callbacks, got %d", len(loop.queued))
	}
	if v.Get() != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("Expected stored vector (1,2,3), got %v", v.Get())
	}
}

func TestVec3ReadIsNotTorn(t *testing.T) {
	var v Vec3
	v.SetQuiet(mgl64.Vec3{1, 1, 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			if i%2 == 0 {
				v.SetQuiet(mgl64.Vec3{1, 1, 1})
			} else {
				v.SetQuiet(mgl64.Vec3{2, 2, 2})
			}
		}
	}()
	for i := 0; i < 10000; i++ {
		got := v.Get()
		if got.X() != got.Y() || got.Y() != got.Z() {
			t.Fatalf("Torn read: %v", got)
		}
	}
	<-done
}

func TestMat3DefaultsToIdentity(t *testing.T) {
	var m Mat3
	if m.Get() != mgl64.Ident3() {
		t.Errorf("Expected identity rotation by default, got %v", m.Get())
	}
}

func TestSetWithoutCallback(t *testing.T) {
	var b Bool
	b.Set(true) // не должно паниковать без колбека
	if !b.Get() {
		t.Error("Expected stored value true")
	}
	var s Str
	s.Set("wood.png")
	if s.Get() != "wood.png" {
		t.Errorf("Expected stored string wood.png, got %q", s.Get())
	}
	var i Int
	i.Set(7)
	if i.Get() != 7 {
		t.Errorf("Expected stored int 7, got %d", i.Get())
	}
}
