package physics

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/ianremmler/ode"
)

// Адаптер твердотельного решателя. Все обращения к ODE живут в этом
// пакете и выполняются только на потоке физического цикла.

var odeInit sync.Once

func initODE() {
	odeInit.Do(func() {
		ode.Init(0, ode.AllAFlag)
	})
}

func toV3(v mgl64.Vec3) ode.Vector3 {
	return ode.V3(v.X(), v.Y(), v.Z())
}

func fromV3(v ode.Vector3) mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[1], v[2]}
}

func toM3(m mgl64.Mat3) ode.Matrix3 {
	r := ode.NewMatrix3()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m.At(i, j)
		}
	}
	return r
}

func fromM3(r ode.Matrix3) mgl64.Mat3 {
	var m mgl64.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, r[i][j])
		}
	}
	return m
}

// Параметры контактных сочленений переходного шага
const (
	maxContacts    = 30
	contactBounce  = 0.1
	contactBounceV = 0.1
	contactSoftCFM = 0.01
	quickStepIters = 5
)

func newContact(cg ode.ContactGeom) *ode.Contact {
	c := ode.NewContact()
	c.Surface.Mode = ode.BounceCtParam | ode.SoftCFMCtParam
	c.Surface.Mu = ode.Infinity
	c.Surface.Bounce = contactBounce
	c.Surface.BounceVel = contactBounceV
	c.Surface.SoftCfm = contactSoftCFM
	c.Geom = cg
	return c
}

// MeshGeomBuilder строит геом решателя для треугольной сетки. Детектор
// столкновений сеток - внешний компонент; умолчание приближает сетку
// ограничивающей сферой.
type MeshGeomBuilder func(space ode.Space, radius float64) ode.Geom

var buildMeshGeom MeshGeomBuilder = func(space ode.Space, radius float64) ode.Geom {
	return space.NewSphere(radius)
}
