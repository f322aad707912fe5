package osc

import (
	"testing"

	goosc "github.com/hypebeast/go-osc/osc"

	"haptic-world/internal/telemetry"
)

func TestTypeTag(t *testing.T) {
	tag := TypeTag([]interface{}{"s1", float32(1), float32(2), float32(3)})
	if tag != "sfff" {
		t.Errorf("Expected typetag sfff, got %q", tag)
	}
	tag = TypeTag([]interface{}{int32(1), int64(2), 3.0, "x"})
	if tag != "ihds" {
		t.Errorf("Expected typetag ihds, got %q", tag)
	}
}

func TestDispatchExactPathAndTag(t *testing.T) {
	tm := telemetry.NewManager()
	d := NewDispatcher(tm)

	var got []interface{}
	d.Handle("/world/s1/position", "fff", func(a []interface{}) { got = a })

	msg := goosc.NewMessage("/world/s1/position")
	msg.Append(float32(1))
	msg.Append(float32(2))
	msg.Append(float32(3))
	d.Dispatch(msg)

	if len(got) != 3 {
		t.Fatalf("Expected handler to receive 3 args, got %d", len(got))
	}
	if F(got, 2) != 3 {
		t.Errorf("Expected third arg 3, got %f", F(got, 2))
	}
}

func TestDispatchOverloadsByTypetag(t *testing.T) {
	tm := telemetry.NewManager()
	d := NewDispatcher(tm)

	var called string
	d.Handle("/world/m/size", "f", func([]interface{}) { called = "uniform" })
	d.Handle("/world/m/size", "fff", func([]interface{}) { called = "vector" })

	msg := goosc.NewMessage("/world/m/size")
	msg.Append(float32(0.5))
	d.Dispatch(msg)
	if called != "uniform" {
		t.Errorf("Expected uniform overload, got %q", called)
	}

	msg = goosc.NewMessage("/world/m/size")
	msg.Append(float32(1))
	msg.Append(float32(2))
	msg.Append(float32(3))
	d.Dispatch(msg)
	if called != "vector" {
		t.Errorf("Expected vector overload, got %q", called)
	}
}

func TestDispatchCountsUnknownAndMalformed(t *testing.T) {
	tm := telemetry.NewManager()
	d := NewDispatcher(tm)
	d.Handle("/world/s1/mass", "f", func([]interface{}) {})

	var errPath, errTag string
	d.OnError = func(path, tag string) { errPath, errTag = path, tag }

	// незнакомый путь
	d.Dispatch(goosc.NewMessage("/world/nope/mass"))
	if tm.UnknownPath.Load() != 1 {
		t.Errorf("Expected 1 unknown path, got %d", tm.UnknownPath.Load())
	}
	if errPath != "/world/nope/mass" {
		t.Errorf("Expected error callback for unknown path, got %q", errPath)
	}

	// знакомый путь, неверные типы
	msg := goosc.NewMessage("/world/s1/mass")
	msg.Append("heavy")
	d.Dispatch(msg)
	if tm.MalformedOSC.Load() != 1 {
		t.Errorf("Expected 1 malformed message, got %d", tm.MalformedOSC.Load())
	}
	if errTag != "s" {
		t.Errorf("Expected error callback with tag s, got %q", errTag)
	}
}

func TestUnhandlePrefix(t *testing.T) {
	tm := telemetry.NewManager()
	d := NewDispatcher(tm)

	called := false
	d.Handle("/world/s1/mass", "f", func([]interface{}) { called = true })
	d.Handle("/world/s1/friction/static", "f", func([]interface{}) { called = true })
	d.Handle("/world/s10/mass", "f", func([]interface{}) { called = true })

	d.UnhandlePrefix("/world/s1")

	msg := goosc.NewMessage("/world/s1/mass")
	msg.Append(float32(1))
	d.Dispatch(msg)
	msg = goosc.NewMessage("/world/s1/friction/static")
	msg.Append(float32(1))
	d.Dispatch(msg)
	if called {
		t.Error("Expected all /world/s1 verbs to be removed")
	}

	// соседнее имя с общим префиксом не затрагивается
	msg = goosc.NewMessage("/world/s10/mass")
	msg.Append(float32(1))
	d.Dispatch(msg)
	if !called {
		t.Error("Expected /world/s10 verbs to survive")
	}
}

func TestArgHelpers(t *testing.T) {
	args := []interface{}{float32(1.5), int32(7), "cursor"}
	if F(args, 0) != 1.5 {
		t.Errorf("Expected F=1.5, got %f", F(args, 0))
	}
	if I(args, 1) != 7 {
		t.Errorf("Expected I=7, got %d", I(args, 1))
	}
	if S(args, 2) != "cursor" {
		t.Errorf("Expected S=cursor, got %q", S(args, 2))
	}
	// выход за границы не паникует
	if F(args, 5) != 0 || I(args, 5) != 0 || S(args, 5) != "" {
		t.Error("Expected zero values for out of range args")
	}
}
