package haptics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Константы пружины курсора: используются и виртуальной массой,
// и пружиной захвата
const (
	cursorSpringK = 10
	cursorSpringB = 0.001
	// device <- device + 10*F
	cursorForceGain = 10
)

// MassState - виртуальная масса за позицией устройства,
// моделируемая пружиной с демпфером
type MassState struct {
	xm     mgl64.Vec3 // позиция массы
	vm     mgl64.Vec3 // скорость массы
	dxPrev mgl64.Vec3
	seeded bool
}

// Update продвигает массу на dt и возвращает прибавку к силе
// устройства. При m <= 0 масса просто следует за устройством.
func (ms *MassState) Update(xd mgl64.Vec3, m, dt float64) mgl64.Vec3 {
	if m <= 0 {
		ms.xm = xd
		ms.vm = mgl64.Vec3{}
		ms.dxPrev = mgl64.Vec3{}
		return mgl64.Vec3{}
	}
	if !ms.seeded {
		ms.xm = xd
		ms.seeded = true
	}
	dx := xd.Sub(ms.xm)
	vSpring := dx.Sub(ms.dxPrev).Mul(1 / dt)
	ms.dxPrev = dx
	f := dx.Mul(-cursorSpringK).Sub(vSpring.Mul(cursorSpringB))
	ms.xm = ms.xm.Add(ms.vm.Mul(dt))
	ms.vm = ms.vm.Sub(f.Mul(dt / m))
	return f.Mul(cursorForceGain)
}

// Reset возвращает массу в позицию устройства
func (ms *MassState) Reset() {
	ms.seeded = false
	ms.vm = mgl64.Vec3{}
	ms.dxPrev = mgl64.Vec3{}
}

// grabSpringForce - сила, притягивающая курсор к захваченному объекту
func grabSpringForce(cursor, object, cursorVel mgl64.Vec3) mgl64.Vec3 {
	return cursor.Sub(object).Mul(-cursorSpringK).Sub(cursorVel.Mul(cursorSpringB))
}
