package world

import (
	"errors"
	"testing"
)

func TestAddObjectRejectsDuplicateName(t *testing.T) {
	m := NewManager()
	if err := m.AddObject(NewObject("s1", KindSphere)); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	err := m.AddObject(NewObject("s1", KindSphere))
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}
	// первый объект остается нетронутым
	if _, ok := m.Object("s1"); !ok {
		t.Error("Expected original object to survive failed create")
	}
}

func TestRemoveObjectDestroysConstraints(t *testing.T) {
	m := NewManager()
	m.AddObject(NewObject("a", KindSphere))
	m.AddObject(NewObject("b", KindSphere))
	m.AddObject(NewObject("c", KindSphere))

	if err := m.AddConstraint(&Constraint{Name: "ab", Kind: ConstraintBall, ObjectA: "a", ObjectB: "b"}); err != nil {
		t.Fatalf("AddConstraint failed: %v", err)
	}
	if err := m.AddConstraint(&Constraint{Name: "bc", Kind: ConstraintHinge, ObjectA: "b", ObjectB: "c"}); err != nil {
		t.Fatalf("AddConstraint failed: %v", err)
	}
	if err := m.AddConstraint(&Constraint{Name: "aw", Kind: ConstraintFixed, ObjectA: "a", ObjectB: StaticWorld}); err != nil {
		t.Fatalf("AddConstraint to static world failed: %v", err)
	}

	_, _, cons, err := m.RemoveObject("a")
	if err != nil {
		t.Fatalf("RemoveObject failed: %v", err)
	}
	if len(cons) != 2 {
		t.Fatalf("Expected 2 destroyed constraints, got %d", len(cons))
	}
	if _, ok := m.Constraint("ab"); ok {
		t.Error("Expected constraint ab to be destroyed with object a")
	}
	if _, ok := m.Constraint("aw"); ok {
		t.Error("Expected constraint aw to be destroyed with object a")
	}
	if _, ok := m.Constraint("bc"); !ok {
		t.Error("Expected constraint bc to survive")
	}
	// b больше не ссылается на разрушенное соединение
	b, _ := m.Object("b")
	if len(b.ConstraintIndices()) != 1 {
		t.Errorf("Expected 1 constraint left on b, got %d", len(b.ConstraintIndices()))
	}
}

func TestCompositeAdoptionAndCascade(t *testing.T) {
	m := NewManager()
	p := NewObject("p", KindComposite)
	m.AddObject(p)
	a := NewObject("p/a", KindPrism)
	a.Parent = "p"
	m.AddObject(a)
	b := NewObject("p/b", KindPrism)
	b.Parent = "p"
	m.AddObject(b)

	children := p.Children()
	if len(children) != 2 {
		t.Fatalf("Expected composite to adopt 2 children, got %d", len(children))
	}

	_, removed, _, err := m.RemoveObject("p")
	if err != nil {
		t.Fatalf("RemoveObject failed: %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("Expected composite and both children removed, got %d", len(removed))
	}
	if _, ok := m.Object("p/a"); ok {
		t.Error("Expected child p/a to be removed with the composite")
	}
}

func TestArenaSlotReuse(t *testing.T) {
	m := NewManager()
	m.AddObject(NewObject("a", KindSphere))
	m.AddObject(NewObject("b", KindSphere))

	c1 := &Constraint{Name: "c1", ObjectA: "a", ObjectB: "b"}
	m.AddConstraint(c1)
	m.RemoveConstraint("c1")

	c2 := &Constraint{Name: "c2", ObjectA: "a", ObjectB: "b"}
	m.AddConstraint(c2)
	if c2.Index() != c1.Index() {
		t.Errorf("Expected freed arena slot %d to be reused, got %d", c1.Index(), c2.Index())
	}
}

func TestConstraintRequiresObjects(t *testing.T) {
	m := NewManager()
	m.AddObject(NewObject("a", KindSphere))
	err := m.AddConstraint(&Constraint{Name: "c", ObjectA: "a", ObjectB: "ghost"})
	if !errors.Is(err, ErrUnknownObject) {
		t.Errorf("Expected ErrUnknownObject, got %v", err)
	}
}

func TestFreshContactEpisodes(t *testing.T) {
	o := NewObject("s1", KindSphere)

	// новый эпизод контакта на шаге 10
	if !o.FreshContact("cursor", 10) {
		t.Error("Expected first contact to be fresh")
	}
	// непрерывный эпизод: шаги 11..20 не свежие
	for step := uint64(11); step <= 20; step++ {
		if o.FreshContact("cursor", step) {
			t.Errorf("Expected contact at step %d to continue the episode", step)
		}
	}
	// разрыв и повторный контакт - новый эпизод
	if !o.FreshContact("cursor", 25) {
		t.Error("Expected contact after a gap to start a new episode")
	}
	// партнеры независимы
	if !o.FreshContact("s2", 26) {
		t.Error("Expected contact with another partner to be fresh")
	}
}

func TestClear(t *testing.T) {
	m := NewManager()
	m.AddObject(NewObject("a", KindSphere))
	m.AddObject(NewObject("b", KindPrism))
	m.AddConstraint(&Constraint{Name: "c", ObjectA: "a", ObjectB: "b"})

	objs, cons := m.Clear()
	if len(objs) != 2 || len(cons) != 1 {
		t.Errorf("Expected 2 objects and 1 constraint cleared, got %d and %d", len(objs), len(cons))
	}
	if len(m.Objects()) != 0 {
		t.Error("Expected empty registry after Clear")
	}
}

func TestDynamicMassSemantics(t *testing.T) {
	o := NewObject("s1", KindSphere)
	if !o.Dynamic() {
		t.Error("Expected default object to be dynamic")
	}
	o.Mass.SetQuiet(0)
	if o.Dynamic() {
		t.Error("Expected zero mass to mean kinematic")
	}
}
