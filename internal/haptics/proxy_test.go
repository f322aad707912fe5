package haptics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/world"
)

func TestProxySphereContact(t *testing.T) {
	a := NewProxyAlgorithm(300)
	s := world.NewObject("s1", world.KindSphere)
	s.Radius.SetQuiet(0.5)
	a.Add(s)

	// снаружи сферы контакта нет
	f := a.Update(mgl64.Vec3{1, 0, 0})
	if f.Len() != 0 || a.ContactObject() != nil {
		t.Errorf("Expected no contact outside the sphere, got force %v", f)
	}

	// внутри: сила выталкивает наружу, к ближайшей поверхности
	f = a.Update(mgl64.Vec3{0.4, 0, 0})
	if a.ContactObject() != s {
		t.Fatal("Expected contact with s1")
	}
	if f.X() <= 0 || math.Abs(f.Y()) > 1e-9 || math.Abs(f.Z()) > 1e-9 {
		t.Errorf("Expected outward force along +X, got %v", f)
	}
	// точка контакта на поверхности
	if math.Abs(a.ContactPoint().Len()-0.5) > 1e-9 {
		t.Errorf("Expected contact point on the surface, got %v", a.ContactPoint())
	}
}

func TestProxyStiffnessScalesForce(t *testing.T) {
	a := NewProxyAlgorithm(100)
	s := world.NewObject("s1", world.KindSphere)
	s.Radius.SetQuiet(1)
	a.Add(s)

	f1 := a.Update(mgl64.Vec3{0.9, 0, 0}).Len()
	s.Stiffness.SetQuiet(200)
	f2 := a.Update(mgl64.Vec3{0.9, 0, 0}).Len()
	if math.Abs(f2-2*f1) > 1e-6 {
		t.Errorf("Expected doubled stiffness to double force: %f vs %f", f1, f2)
	}
}

func TestProxyBoxContact(t *testing.T) {
	a := NewProxyAlgorithm(300)
	p := world.NewObject("p1", world.KindPrism)
	p.Size.SetQuiet(mgl64.Vec3{0.2, 0.2, 0.2}) // полные габариты
	a.Add(p)

	// чуть ниже верхней грани: выталкивание вверх
	f := a.Update(mgl64.Vec3{0, 0, 0.08})
	if a.ContactObject() != p {
		t.Fatal("Expected contact with p1")
	}
	if f.Z() <= 0 {
		t.Errorf("Expected upward force, got %v", f)
	}
	if math.Abs(a.ContactPoint().Z()-0.1) > 1e-9 {
		t.Errorf("Expected contact point on the top face, got %v", a.ContactPoint())
	}

	// снаружи коробки контакта нет
	f = a.Update(mgl64.Vec3{0.3, 0, 0})
	if f.Len() != 0 {
		t.Errorf("Expected no contact outside the box, got %v", f)
	}
}

func TestProxyDisabledColliderSkipsContact(t *testing.T) {
	a := NewProxyAlgorithm(300)
	s := world.NewObject("s1", world.KindSphere)
	s.Radius.SetQuiet(0.5)
	a.Add(s)

	a.SetEnabled("s1", false)
	f := a.Update(mgl64.Vec3{0.1, 0, 0})
	if f.Len() != 0 || a.ContactObject() != nil {
		t.Error("Expected disabled collider to be haptically transparent")
	}

	a.SetEnabled("s1", true)
	a.Update(mgl64.Vec3{0.1, 0, 0})
	if a.ContactObject() != s {
		t.Error("Expected re-enabled collider to contact again")
	}
}

func TestProxyTracksMovingObject(t *testing.T) {
	a := NewProxyAlgorithm(300)
	s := world.NewObject("s1", world.KindSphere)
	s.Radius.SetQuiet(0.5)
	a.Add(s)

	if a.Update(mgl64.Vec3{2, 0, 0}); a.ContactObject() != nil {
		t.Fatal("Expected no contact before the object moves")
	}
	// объект переехал под неподвижный инструмент
	s.Position.SetQuiet(mgl64.Vec3{2, 0, 0.2})
	a.Update(mgl64.Vec3{2, 0, 0})
	if a.ContactObject() != s {
		t.Error("Expected contact after the object moved onto the tool")
	}
}

func TestCursorMassTracksDeviceWhenMassless(t *testing.T) {
	var ms MassState
	f := ms.Update(mgl64.Vec3{1, 2, 3}, 0, 0.001)
	if f.Len() != 0 {
		t.Errorf("Expected no force for massless cursor, got %v", f)
	}
	if ms.xm != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("Expected mass to track device, got %v", ms.xm)
	}
}

func TestCursorMassSpringPullsDeviceTowardMass(t *testing.T) {
	var ms MassState
	ms.Update(mgl64.Vec3{0, 0, 0}, 0.1, 0.001)
	// устройство прыгнуло вперед, пружина тянет устройство назад к массе
	f := ms.Update(mgl64.Vec3{0.1, 0, 0}, 0.1, 0.001)
	if f.X() >= 0 {
		t.Errorf("Expected spring force opposing displacement, got %v", f)
	}
}

func TestGrabSpringForceDirection(t *testing.T) {
	// курсор в (1,0,0), объект в начале координат: сила вдоль -X
	f := grabSpringForce(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{}, mgl64.Vec3{})
	if f.X() >= 0 || math.Abs(f.Y()) > 1e-9 {
		t.Errorf("Expected force toward the object, got %v", f)
	}
	if math.Abs(f.Len()-10) > 1e-9 {
		t.Errorf("Expected magnitude k*distance = 10, got %f", f.Len())
	}
}
