package world

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateName     = errors.New("name already in use")
	ErrUnknownObject     = errors.New("no such object")
	ErrNotComposite      = errors.New("parent is not a composite")
	ErrUnknownConstraint = errors.New("no such constraint")
)

// Manager is the shared registry of scene records. Simulations keep
// their own per-thread representations and look records up by name.
type Manager struct {
	mu          sync.RWMutex
	objects     map[string]*Object
	constraints map[string]*Constraint
	arena       []*Constraint // nil slots are reusable
}

func NewManager() *Manager {
	return &Manager{
		objects:     make(map[string]*Object),
		constraints: make(map[string]*Constraint),
	}
}

// AddObject registers a new object record. Creation fails on a name
// collision with another object; constraint names are a separate
// namespace and are not checked.
func (m *Manager) AddObject(o *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.objects[o.Name]; dup {
		return fmt.Errorf("object %q: %w", o.Name, ErrDuplicateName)
	}
	m.objects[o.Name] = o
	if o.Parent != "" {
		if p, ok := m.objects[o.Parent]; ok {
			p.adoptChild(o.Name)
		}
	}
	return nil
}

func (m *Manager) Object(name string) (*Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[name]
	return o, ok
}

// Objects returns a snapshot of all object records
func (m *Manager) Objects() []*Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Object, 0, len(m.objects))
	for _, o := range m.objects {
		out = append(out, o)
	}
	return out
}

// RemoveObject unregisters an object together with every constraint
// referencing it, directly or through a link. Children of a removed
// composite are removed as well. Returns the removed object and the
// removed constraints so each simulation can tear down its local
// representations; a constraint is never left dangling.
func (m *Manager) RemoveObject(name string) (*Object, []*Object, []*Constraint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.objects[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("object %q: %w", name, ErrUnknownObject)
	}

	removed := []*Object{o}
	delete(m.objects, name)
	if o.Parent != "" {
		if p, ok := m.objects[o.Parent]; ok {
			p.dropChild(name)
		}
	}
	// дети композита разделяют его тело и уходят вместе с ним
	for _, childName := range o.Children() {
		if c, ok := m.objects[childName]; ok {
			delete(m.objects, childName)
			removed = append(removed, c)
		}
	}

	var dead []*Constraint
	for _, obj := range removed {
		for _, idx := range obj.ConstraintIndices() {
			if c := m.takeConstraintLocked(idx); c != nil {
				dead = append(dead, c)
			}
		}
	}
	for _, obj := range m.objects {
		obj.ForgetContact(name)
	}
	return o, removed, dead, nil
}

// AddConstraint registers a constraint in the arena and links it to
// both endpoint objects. ObjectB may be StaticWorld.
func (m *Manager) AddConstraint(c *Constraint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.constraints[c.Name]; dup {
		return fmt.Errorf("constraint %q: %w", c.Name, ErrDuplicateName)
	}
	a, ok := m.objects[c.ObjectA]
	if !ok {
		return fmt.Errorf("constraint %q: object %q: %w", c.Name, c.ObjectA, ErrUnknownObject)
	}
	var bObj *Object
	if c.ObjectB != StaticWorld {
		bObj, ok = m.objects[c.ObjectB]
		if !ok {
			return fmt.Errorf("constraint %q: object %q: %w", c.Name, c.ObjectB, ErrUnknownObject)
		}
	}

	c.index = -1
	for i, slot := range m.arena {
		if slot == nil {
			c.index = i
			m.arena[i] = c
			break
		}
	}
	if c.index < 0 {
		c.index = len(m.arena)
		m.arena = append(m.arena, c)
	}
	m.constraints[c.Name] = c
	a.linkConstraint(c.index)
	if bObj != nil {
		bObj.linkConstraint(c.index)
	}
	return nil
}

func (m *Manager) Constraint(name string) (*Constraint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.constraints[name]
	return c, ok
}

// Constraints returns a snapshot of all live constraints
func (m *Manager) Constraints() []*Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Constraint, 0, len(m.constraints))
	for _, c := range m.constraints {
		out = append(out, c)
	}
	return out
}

// RemoveConstraint unregisters a constraint by name
func (m *Manager) RemoveConstraint(name string) (*Constraint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.constraints[name]
	if !ok {
		return nil, fmt.Errorf("constraint %q: %w", name, ErrUnknownConstraint)
	}
	m.takeConstraintLocked(c.index)
	return c, nil
}

// takeConstraintLocked frees an arena slot and unlinks the endpoints
func (m *Manager) takeConstraintLocked(idx int) *Constraint {
	if idx < 0 || idx >= len(m.arena) {
		return nil
	}
	c := m.arena[idx]
	if c == nil {
		return nil
	}
	m.arena[idx] = nil
	delete(m.constraints, c.Name)
	if a, ok := m.objects[c.ObjectA]; ok {
		a.unlinkConstraint(idx)
	}
	if c.ObjectB != StaticWorld {
		if b, ok := m.objects[c.ObjectB]; ok {
			b.unlinkConstraint(idx)
		}
	}
	return c
}

// Clear removes every object and constraint, returning them for
// per-simulation teardown.
func (m *Manager) Clear() ([]*Object, []*Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objs := make([]*Object, 0, len(m.objects))
	for _, o := range m.objects {
		objs = append(objs, o)
	}
	cons := make([]*Constraint, 0, len(m.constraints))
	for _, c := range m.constraints {
		cons = append(cons, c)
	}
	m.objects = make(map[string]*Object)
	m.constraints = make(map[string]*Constraint)
	m.arena = nil
	return objs, cons
}
