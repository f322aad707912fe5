package haptics

import (
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/bus"
	"haptic-world/internal/osc"
	"haptic-world/internal/sim"
	"haptic-world/internal/telemetry"
	"haptic-world/internal/world"
)

// Sim - haptic симуляция: цикл курсора на ~1 кГц. Читает позу
// устройства, считает силу взаимодействия, отдает силу устройству,
// шлет контактные силы физике и события столкновений пиру.
type Sim struct {
	Loop *sim.Loop

	mgr    *world.Manager
	tm     *telemetry.Manager
	out    *osc.Sender
	device Device
	master *atomic.Bool

	calib     Calibration
	proxy     *ProxyAlgorithm
	potential *PotentialAlgorithm
	mass      MassState

	cursor     *world.Object
	cursorVel  mgl64.Vec3
	grabbed    *world.Object
	extraForce mgl64.Vec3
	extraTicks int
	extraDecay int
	lastForce  mgl64.Vec3
	step       uint64

	poseErrLogged bool
}

// New создает haptic симуляцию. extraDecay защищает устройство при
// заторе сети: наложенная сила гаснет через ceil(phys*2/hap) тиков.
func New(loop *sim.Loop, mgr *world.Manager, tm *telemetry.Manager, out *osc.Sender,
	device Device, master *atomic.Bool, physicsStep, hapticsStep time.Duration,
	defaultStiffness float64) *Sim {
	s := &Sim{
		Loop:       loop,
		mgr:        mgr,
		tm:         tm,
		out:        out,
		device:     device,
		master:     master,
		proxy:      NewProxyAlgorithm(defaultStiffness),
		potential:  NewPotentialAlgorithm(),
		extraDecay: int(math.Ceil(2 * float64(physicsStep) / float64(hapticsStep))),
	}
	loop.SetStepper(s)
	loop.SetApply(s.apply)
	return s
}

// Init открывает устройство. Отсутствие устройства не фатально для
// процесса: цикл логирует и помечает себя завершенным.
func (s *Sim) Init() error {
	return s.device.Open()
}

// Cleanup глушит силу и закрывает устройство
func (s *Sim) Cleanup() {
	s.device.SetForce(mgl64.Vec3{})
	s.device.Close()
}

func (s *Sim) apply(m bus.Message) {
	switch m.Path {
	case "/object/create":
		o := m.Args[0].(*world.Object)
		if o.Kind == world.KindCursor {
			s.cursor = o
			s.mass.Reset()
			return
		}
		s.proxy.Add(o)
	case "/object/destroy":
		for _, o := range m.Args[0].([]*world.Object) {
			s.dropObject(o)
		}
	case "/clear":
		for _, c := range s.proxy.colliders {
			s.dropObject(c.obj)
		}
	case "/constraint/create", "/constraint/destroy":
		// соединения не имеют haptic представления
	default:
		s.tm.UnknownPath.Add(1)
	}
}

func (s *Sim) dropObject(o *world.Object) {
	if s.grabbed == o {
		s.Grab(nil)
	}
	if s.cursor == o {
		s.cursor = nil
		return
	}
	s.proxy.Remove(o.Name)
	s.potential.Remove(o.Name)
}

// Step выполняет один haptic тик
func (s *Sim) Step(dt float64) {
	s.step++

	raw, err := s.device.Pose()
	if err != nil {
		if !s.poseErrLogged {
			s.poseErrLogged = true
			log.Printf("[Haptics] device pose: %v", err)
		}
		return
	}

	// адаптивная калибровка рабочего объема
	p := s.calib.Map(raw)

	if s.cursor != nil {
		prev := s.cursor.Position.Get()
		s.cursor.Position.SetQuiet(p)
		s.cursorVel = p.Sub(prev).Mul(1 / dt)
		if s.step%16 == 0 {
			s.Loop.Sendto(sim.NameVisual, false,
				bus.Message{Path: "/touch", Args: []interface{}{s.cursor.Name}})
		}
	}

	var force mgl64.Vec3
	var contact *world.Object
	var contactPoint mgl64.Vec3
	if s.grabbed != nil {
		// захват: устройство тянется к объекту, контакта нет
		force = grabSpringForce(p, s.grabbed.Position.Get(), s.cursorVel)
	} else {
		force = s.proxy.Update(p)
		contact = s.proxy.ContactObject()
		contactPoint = s.proxy.ContactPoint()
		if contact == nil {
			// первый алгоритм с контактом побеждает
			force = force.Add(s.potential.Update(p))
			contact = s.potential.ContactObject()
			contactPoint = s.potential.ContactPoint()
		}
		if s.cursor != nil {
			force = force.Add(s.mass.Update(p, s.cursor.Mass.Get(), dt))
		}
	}

	if s.extraTicks > 0 {
		force = force.Add(s.extraForce)
		s.extraTicks--
	}

	force = s.finite(force)
	s.device.SetForce(force)
	s.lastForce = force

	if contact != nil {
		// контактная сила физике: знак обращен, сила приложена в точке
		s.Loop.Sendto(sim.NamePhysics, false, bus.Message{
			Path: "/world/" + contact.Name + "/push",
			Args: []interface{}{
				-force.X(), -force.Y(), -force.Z(),
				contactPoint.X(), contactPoint.Y(), contactPoint.Z(),
			},
		})
		if contact.FreshContact("cursor", s.step) {
			s.tm.Collisions.Add(1)
			if s.master.Load() || contact.Collide.Get() {
				speed := s.cursorVel.Sub(contact.Velocity.Get()).Len()
				s.out.Emit("/world/collide", contact.Name, "cursor", float32(speed))
			}
		}
	}

	// магнитуда последней силы, прореженная до ~10 Гц
	if s.step%100 == 0 {
		s.out.Emit("/force/magnitude", float32(s.lastForce.Len()))
	}
}

// Grab делает объект захваченным (nil отпускает). Захваченный объект
// не контактирует haptic курсором; захвачен максимум один объект.
func (s *Sim) Grab(o *world.Object) {
	if s.grabbed == o {
		return
	}
	if s.grabbed != nil {
		s.proxy.SetEnabled(s.grabbed.Name, true)
	}
	s.grabbed = o
	hideCursor := false
	if o != nil {
		s.proxy.SetEnabled(o.Name, false)
		hideCursor = true
		log.Printf("[Haptics] grabbed %q", o.Name)
	}
	if s.cursor != nil {
		s.cursor.Visible.SetQuiet(!hideCursor)
		s.Loop.Sendto(sim.NameVisual, false,
			bus.Message{Path: "/touch", Args: []interface{}{s.cursor.Name}})
	}
}

// Grabbed возвращает текущий захваченный объект
func (s *Sim) Grabbed() *world.Object { return s.grabbed }

// ExtraForce накладывает внешнюю силу на устройство с затуханием
func (s *Sim) ExtraForce(f mgl64.Vec3) {
	s.extraForce = f
	s.extraTicks = s.extraDecay
}

// LastForce возвращает последнюю отображенную силу
func (s *Sim) LastForce() mgl64.Vec3 { return s.lastForce }

func (s *Sim) finite(v mgl64.Vec3) mgl64.Vec3 {
	for i := 0; i < 3; i++ {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			s.tm.NonFiniteForce.Add(1)
			return mgl64.Vec3{}
		}
	}
	return v
}
