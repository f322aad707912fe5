package haptics

import (
	"errors"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// Device - драйвер устройства силовой обратной связи: отдает позицию
// инструмента, принимает вектор силы. Внешний компонент; симуляция
// работает с ним только через этот интерфейс.
type Device interface {
	Open() error
	// Pose возвращает сырую позицию устройства в его собственных единицах
	Pose() (mgl64.Vec3, error)
	// SetForce задает силу, отображаемую на устройстве
	SetForce(f mgl64.Vec3) error
	Close() error
}

// ErrNoDevice возвращается, когда реального устройства нет
var ErrNoDevice = errors.New("haptic device not present")

// SimulatedDevice - программная замена устройства: позиция задается
// извне (тестами или отладочным OSC глаголом), сила только читается.
type SimulatedDevice struct {
	pose  atomic.Pointer[mgl64.Vec3]
	force atomic.Pointer[mgl64.Vec3]
}

func NewSimulatedDevice() *SimulatedDevice {
	return &SimulatedDevice{}
}

func (d *SimulatedDevice) Open() error { return nil }

func (d *SimulatedDevice) Pose() (mgl64.Vec3, error) {
	if p := d.pose.Load(); p != nil {
		return *p, nil
	}
	return mgl64.Vec3{}, nil
}

func (d *SimulatedDevice) SetForce(f mgl64.Vec3) error {
	d.force.Store(&f)
	return nil
}

func (d *SimulatedDevice) Close() error { return nil }

// SetPose двигает симулируемый инструмент
func (d *SimulatedDevice) SetPose(p mgl64.Vec3) {
	d.pose.Store(&p)
}

// Force возвращает последнюю отображенную силу
func (d *SimulatedDevice) Force() mgl64.Vec3 {
	if f := d.force.Load(); f != nil {
		return *f
	}
	return mgl64.Vec3{}
}

// MissingDevice используется, когда конфигурация требует настоящее
// устройство: Open всегда отказывает с ErrNoDevice, и main завершает
// процесс с ненулевым кодом еще до запуска симуляций.
type MissingDevice struct{}

func (MissingDevice) Open() error                 { return ErrNoDevice }
func (MissingDevice) Pose() (mgl64.Vec3, error)   { return mgl64.Vec3{}, ErrNoDevice }
func (MissingDevice) SetForce(f mgl64.Vec3) error { return ErrNoDevice }
func (MissingDevice) Close() error                { return nil }
