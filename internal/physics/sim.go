package physics

import (
	"log"
	"math"
	"strings"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/ianremmler/ode"

	"haptic-world/internal/bus"
	"haptic-world/internal/osc"
	"haptic-world/internal/sim"
	"haptic-world/internal/telemetry"
	"haptic-world/internal/world"
)

// rep - представление объекта в физической симуляции. Дети композита
// не имеют собственного тела: их геомы прикреплены к телу родителя,
// линейное и угловое состояние производное.
type rep struct {
	obj     *world.Object
	body    ode.Body
	geom    ode.Geom
	ownBody bool
	parent  *rep
}

type jointRep struct {
	c         *world.Constraint
	ball      ode.BallJoint
	hinge     ode.HingeJoint
	hinge2    ode.Hinge2Joint
	universal ode.UniversalJoint
	slider    ode.SliderJoint
	fixed     ode.FixedJoint
}

type push struct {
	name  string
	force mgl64.Vec3
	point mgl64.Vec3
	atPos bool
}

// oscillator - периодический внутрицикловый колбек, заменяющий
// неуправляемые потоки: меандр силы по мировой оси Y
type oscillator struct {
	hz    float64
	amp   float64
	phase float64
}

type contactPair struct {
	a, b  *rep
	speed float64
}

// Sim - физическая симуляция: обертка твердотельного решателя,
// владеющая телами, геомами и группой сочленений. Шаг раз в 10 мс.
type Sim struct {
	Loop *sim.Loop

	mgr    *world.Manager
	tm     *telemetry.Manager
	out    *osc.Sender
	rec    *telemetry.Recorder
	master *atomic.Bool // мировой выключатель отчетов о столкновениях

	gravity mgl64.Vec3

	w       ode.World
	space   ode.Space
	ctGroup ode.JointGroup

	reps        map[string]*rep
	byGeom      map[ode.Geom]*rep
	joints      map[string]*jointRep
	oscillators map[string]*oscillator
	pushes      []push
	contacts    []contactPair
	step        uint64
}

// New создает физическую симуляцию поверх цикла loop
func New(loop *sim.Loop, mgr *world.Manager, tm *telemetry.Manager, out *osc.Sender,
	rec *telemetry.Recorder, master *atomic.Bool, gravity mgl64.Vec3) *Sim {
	s := &Sim{
		Loop:        loop,
		mgr:         mgr,
		tm:          tm,
		out:         out,
		rec:         rec,
		master:      master,
		gravity:     gravity,
		reps:        make(map[string]*rep),
		byGeom:      make(map[ode.Geom]*rep),
		joints:      make(map[string]*jointRep),
		oscillators: make(map[string]*oscillator),
	}
	loop.SetStepper(s)
	loop.SetApply(s.apply)
	return s
}

// Init создает мир решателя и всегда возвращает nil. Ошибка Init не
// доходит до main: цикл логирует ее и помечает себя завершенным.
func (s *Sim) Init() error {
	initODE()
	s.w = ode.NewWorld()
	s.w.SetGravity(toV3(s.gravity))
	s.w.SetQuickStepNumIterations(quickStepIters)
	s.space = ode.NilSpace().NewHashSpace()
	s.ctGroup = ode.NewJointGroup(maxContacts * 64)
	return nil
}

// Cleanup разрушает сцену решателя на потоке симуляции
func (s *Sim) Cleanup() {
	for name := range s.joints {
		s.removeJoint(name)
	}
	for name := range s.reps {
		s.removeRep(name)
	}
	s.ctGroup.Destroy()
	s.space.Destroy()
	s.w.Destroy()
}

// apply обрабатывает адресные сообщения очереди физики
func (s *Sim) apply(m bus.Message) {
	switch {
	case m.Path == "/object/create":
		s.addObject(m.Args[0].(*world.Object))
	case m.Path == "/object/destroy":
		for _, c := range m.Args[1].([]*world.Constraint) {
			s.removeJoint(c.Name)
		}
		// дети раньше родителя: их геомы еще прикреплены к его телу
		objs := m.Args[0].([]*world.Object)
		for i := len(objs) - 1; i >= 0; i-- {
			s.removeRep(objs[i].Name)
		}
	case m.Path == "/constraint/create":
		s.addJoint(m.Args[0].(*world.Constraint))
	case m.Path == "/constraint/destroy":
		s.removeJoint(m.Args[0].(*world.Constraint).Name)
	case m.Path == "/clear":
		for name := range s.joints {
			s.removeJoint(name)
		}
		for name := range s.reps {
			s.removeRep(name)
		}
	case strings.HasSuffix(m.Path, "/push"):
		// /world/<obj>/push fx fy fz px py pz - контактная сила haptics
		name := strings.TrimSuffix(strings.TrimPrefix(m.Path, "/world/"), "/push")
		f := mgl64.Vec3{osc.F(m.Args, 0), osc.F(m.Args, 1), osc.F(m.Args, 2)}
		p := mgl64.Vec3{osc.F(m.Args, 3), osc.F(m.Args, 4), osc.F(m.Args, 5)}
		s.AddPush(name, f, p)
	default:
		s.tm.UnknownPath.Add(1)
	}
}

// Step выполняет один шаг физики
func (s *Sim) Step(dt float64) {
	s.step++

	// накопленные контактные силы курсора и разовые внешние силы
	for _, p := range s.pushes {
		r, ok := s.reps[p.name]
		if !ok || !r.obj.Dynamic() {
			continue
		}
		f := s.finite(p.force)
		if p.atPos {
			r.body.AddForceAtPos(toV3(f), toV3(p.point))
		} else {
			r.body.AddForce(toV3(f))
		}
	}
	s.pushes = s.pushes[:0]

	for name, o := range s.oscillators {
		r, ok := s.reps[name]
		if !ok {
			delete(s.oscillators, name)
			continue
		}
		o.phase += 2 * math.Pi * o.hz * dt
		if o.phase >= 2*math.Pi {
			o.phase -= 2 * math.Pi
		}
		f := o.amp
		if o.phase >= math.Pi {
			f = -o.amp
		}
		r.body.AddForce(ode.V3(0, f, 0))
	}

	// широкая+узкая фаза, переходные контактные сочленения
	s.contacts = s.contacts[:0]
	s.space.Collide(nil, s.nearCallback)

	s.w.QuickStep(dt)
	s.ctGroup.Empty()

	s.publishPoses()
	s.runMotors(dt)
	s.reportCollisions()

	if s.rec != nil && s.step%10 == 0 {
		for _, r := range s.reps {
			s.rec.RecordPose(s.step, r.obj.Name, r.obj.Position.Get(), r.obj.Velocity.Get())
		}
	}
}

func (s *Sim) nearCallback(data interface{}, o1, o2 ode.Geom) {
	b1, b2 := o1.Body(), o2.Body()
	r1, r2 := s.byGeom[o1], s.byGeom[o2]
	if r1 != nil && r2 != nil && r1.bodyOwner() == r2.bodyOwner() {
		// геомы одного композита не сталкиваются между собой
		return
	}
	cgs := o1.Collide(o2, maxContacts, 0)
	if len(cgs) == 0 {
		return
	}
	for _, cg := range cgs {
		ct := newContact(cg)
		j := s.w.NewContactJoint(s.ctGroup, ct)
		j.Attach(b1, b2)
	}
	if r1 != nil && r2 != nil {
		v1 := fromV3(b1.LinearVel())
		v2 := fromV3(b2.LinearVel())
		s.contacts = append(s.contacts, contactPair{a: r1, b: r2, speed: v1.Sub(v2).Len()})
	}
}

func (r *rep) bodyOwner() *rep {
	if r.parent != nil {
		return r.parent
	}
	return r
}

// publishPoses публикует позы и скорости динамических объектов:
// обновляет публичные ячейки и помечает объекты в визуальном зеркале.
// Haptics читает те же ячейки в начале своего тика.
func (s *Sim) publishPoses() {
	for name, r := range s.reps {
		if !r.obj.Dynamic() && r.parent == nil {
			continue
		}
		var pos mgl64.Vec3
		var rot mgl64.Mat3
		if r.parent != nil {
			// состояние ребенка производно от тела композита
			pos = fromV3(r.geom.Position())
			rot = fromM3(r.geom.Rotation())
			r.obj.Velocity.SetQuiet(fromV3(r.parent.body.LinearVel()))
		} else {
			pos = fromV3(r.body.Position())
			rot = fromM3(r.body.Rotation())
			r.obj.Velocity.SetQuiet(fromV3(r.body.LinearVel()))
		}
		r.obj.Position.SetQuiet(pos)
		r.obj.Rotation.SetQuiet(rot)
		s.Loop.Sendto(sim.NameVisual, false, bus.Message{Path: "/touch", Args: []interface{}{name}})
	}
}

// runMotors применяет отклик моторизованных соединений: t = -k*a - b*w
func (s *Sim) runMotors(dt float64) {
	for _, j := range s.joints {
		if !j.c.Motorized() {
			continue
		}
		k := j.c.Stiffness.Get()
		b := j.c.Damping.Get()
		switch j.c.Kind {
		case world.ConstraintHinge:
			tq := -k*j.hinge.Angle() - b*j.hinge.AngleRate()
			j.hinge.AddTorque(s.finiteScalar(tq))
			j.c.Torque.SetQuiet(tq)
		case world.ConstraintHinge2:
			// угол второй оси недоступен в решателе, используется первый
			a1 := j.hinge2.Angle1()
			t1 := -k*a1 - b*j.hinge2.Angle1Rate()
			t2 := -k*a1 - b*j.hinge2.Angle2Rate()
			j.hinge2.AddTorques(s.finiteScalar(t1), s.finiteScalar(t2))
			j.c.Torque.SetQuiet(t1)
		case world.ConstraintUniversal:
			t1 := -k*j.universal.Angle1() - b*j.universal.Angle1Rate()
			t2 := -k*j.universal.Angle2() - b*j.universal.Angle2Rate()
			j.universal.AddTorques(s.finiteScalar(t1), s.finiteScalar(t2))
			j.c.Torque.SetQuiet(t1)
		case world.ConstraintSlider:
			f := -k*j.slider.Position() - b*j.slider.PositionRate()
			j.slider.AddForce(s.finiteScalar(f))
			j.c.ForceV.SetQuiet(f)
		}
	}
}

func (s *Sim) reportCollisions() {
	for _, cp := range s.contacts {
		freshA := cp.a.obj.FreshContact(cp.b.obj.Name, s.step)
		freshB := cp.b.obj.FreshContact(cp.a.obj.Name, s.step)
		if !freshA && !freshB {
			continue
		}
		s.tm.Collisions.Add(1)
		if s.rec != nil {
			s.rec.RecordCollision(s.step, cp.a.obj.Name, cp.b.obj.Name, cp.speed)
		}
		if s.master.Load() || cp.a.obj.Collide.Get() || cp.b.obj.Collide.Get() {
			s.out.Emit("/world/collide", cp.a.obj.Name, cp.b.obj.Name, float32(cp.speed))
		}
	}
}

// addObject строит локальное представление объекта в решателе
func (s *Sim) addObject(o *world.Object) {
	if o.Kind == world.KindCursor {
		// курсор не участвует в динамике твердых тел: его контактные
		// силы приходят push-сообщениями от haptics
		return
	}
	r := &rep{obj: o}
	if o.Parent != "" {
		if p, ok := s.reps[o.Parent]; ok && p.obj.Kind == world.KindComposite {
			r.parent = p
			r.body = p.body
			r.geom = s.buildGeom(o)
			r.geom.SetBody(p.body)
			offset := o.Position.Get().Sub(p.obj.Position.Get())
			r.geom.SetOffsetPosition(toV3(offset))
			s.reps[o.Name] = r
			s.byGeom[r.geom] = r
			s.recomputeCompositeMass(p)
			return
		}
		log.Printf("[Physics] parent %q for %q is not a composite, creating detached", o.Parent, o.Name)
	}

	r.ownBody = true
	r.body = s.w.NewBody()
	r.body.SetPosition(toV3(o.Position.Get()))
	r.body.SetRotation(toM3(o.Rotation.Get()))
	if o.Kind != world.KindComposite {
		r.geom = s.buildGeom(o)
		r.geom.SetBody(r.body)
		s.byGeom[r.geom] = r
	}
	s.applyMass(r)
	s.reps[o.Name] = r
}

func (s *Sim) buildGeom(o *world.Object) ode.Geom {
	switch o.Kind {
	case world.KindSphere:
		return s.space.NewSphere(o.Radius.Get())
	case world.KindPrism:
		// size задает полные габариты, не полуразмеры
		return s.space.NewBox(toV3(o.Size.Get()))
	case world.KindMesh:
		scale := o.Size.Get().X()
		if scale == 0 {
			scale = 1
		}
		return buildMeshGeom(s.space, o.Mesh.Bounds()*scale)
	}
	return s.space.NewSphere(o.Radius.Get())
}

// applyMass устанавливает массу тела; нулевая масса делает тело
// кинематическим
func (s *Sim) applyMass(r *rep) {
	m := r.obj.Mass.Get()
	if m <= 0 {
		r.body.SetKinematic()
		return
	}
	r.body.SetDynamic()
	mass := ode.NewMass()
	switch r.obj.Kind {
	case world.KindPrism:
		sz := r.obj.Size.Get()
		mass.SetBoxTotal(m, toV3(sz))
	case world.KindComposite:
		mass.SetSphereTotal(m, world.DefaultRadius)
	default:
		radius := r.obj.Radius.Get()
		if radius <= 0 {
			radius = world.DefaultRadius
		}
		mass.SetSphereTotal(m, radius)
	}
	r.body.SetMass(mass)
}

// recomputeCompositeMass суммирует массы детей композита
func (s *Sim) recomputeCompositeMass(p *rep) {
	total := 0.0
	for _, childName := range p.obj.Children() {
		if c, ok := s.reps[childName]; ok {
			total += c.obj.Mass.Get()
		}
	}
	if total <= 0 {
		total = p.obj.Mass.Get()
	}
	p.obj.Mass.SetQuiet(total)
	s.applyMass(p)
}

func (s *Sim) removeRep(name string) {
	r, ok := s.reps[name]
	if !ok {
		return
	}
	delete(s.reps, name)
	delete(s.oscillators, name)
	if r.geom != nil {
		delete(s.byGeom, r.geom)
		r.geom.Destroy()
	}
	if r.ownBody {
		r.body.Destroy()
	} else if r.parent != nil {
		s.recomputeCompositeMass(r.parent)
	}
}

// SetPosition телепортирует тело (кинематика: позиция извне)
func (s *Sim) SetPosition(name string, v mgl64.Vec3) {
	if r, ok := s.reps[name]; ok && r.ownBody {
		r.body.SetPosition(toV3(v))
		s.touchVisual(name)
	}
}

func (s *Sim) SetRotation(name string, m mgl64.Mat3) {
	if r, ok := s.reps[name]; ok && r.ownBody {
		r.body.SetRotation(toM3(m))
		s.touchVisual(name)
	}
}

// Rebuild пересоздает геом после смены габаритов
func (s *Sim) Rebuild(name string) {
	r, ok := s.reps[name]
	if !ok || r.obj.Kind == world.KindComposite {
		return
	}
	if r.geom != nil {
		delete(s.byGeom, r.geom)
		r.geom.Destroy()
	}
	r.geom = s.buildGeom(r.obj)
	if r.parent != nil {
		r.geom.SetBody(r.parent.body)
		offset := r.obj.Position.Get().Sub(r.parent.obj.Position.Get())
		r.geom.SetOffsetPosition(toV3(offset))
	} else {
		r.geom.SetBody(r.body)
	}
	s.byGeom[r.geom] = r
	if r.parent != nil {
		s.recomputeCompositeMass(r.parent)
	} else {
		s.applyMass(r)
	}
	s.touchVisual(name)
}

// touchVisual помечает объект измененным в визуальном зеркале
func (s *Sim) touchVisual(name string) {
	s.Loop.Sendto(sim.NameVisual, false, bus.Message{Path: "/touch", Args: []interface{}{name}})
}

func (s *Sim) SetVelocity(name string, v mgl64.Vec3) {
	if r, ok := s.reps[name]; ok && r.ownBody {
		r.body.SetLinearVel(toV3(v))
	}
}

func (s *Sim) SetMass(name string) {
	r, ok := s.reps[name]
	if !ok {
		return
	}
	if r.parent != nil {
		s.recomputeCompositeMass(r.parent)
		return
	}
	s.applyMass(r)
}

// AddForce ставит разовую внешнюю силу в центр масс на следующий шаг
func (s *Sim) AddForce(name string, f mgl64.Vec3) {
	s.pushes = append(s.pushes, push{name: name, force: f})
}

// AddPush ставит контактную силу haptics в точке контакта
func (s *Sim) AddPush(name string, f, p mgl64.Vec3) {
	s.pushes = append(s.pushes, push{name: name, force: f, point: p, atPos: true})
}

// Oscillate включает меандр силы на объекте; amp=0 выключает
func (s *Sim) Oscillate(name string, hz, amp float64) {
	if amp == 0 || hz == 0 {
		delete(s.oscillators, name)
		return
	}
	s.oscillators[name] = &oscillator{hz: hz, amp: amp}
}

// SetGravity меняет вектор гравитации мира
func (s *Sim) SetGravity(g mgl64.Vec3) {
	s.gravity = g
	s.w.SetGravity(toV3(g))
}

func (s *Sim) addJoint(c *world.Constraint) {
	ra, okA := s.reps[c.ObjectA]
	if !okA {
		log.Printf("[Physics] constraint %q: unknown object %q", c.Name, c.ObjectA)
		return
	}
	bodyA := ra.bodyOwner().body
	var bodyB ode.Body
	if c.ObjectB != world.StaticWorld {
		rb, okB := s.reps[c.ObjectB]
		if !okB {
			log.Printf("[Physics] constraint %q: unknown object %q", c.Name, c.ObjectB)
			return
		}
		bodyB = rb.bodyOwner().body
	}

	j := &jointRep{c: c}
	switch c.Kind {
	case world.ConstraintBall:
		j.ball = s.w.NewBallJoint(ode.JointGroup{})
		j.ball.Attach(bodyA, bodyB)
		j.ball.SetAnchor(toV3(c.Anchor))
	case world.ConstraintHinge:
		j.hinge = s.w.NewHingeJoint(ode.JointGroup{})
		j.hinge.Attach(bodyA, bodyB)
		j.hinge.SetAnchor(toV3(c.Anchor))
		j.hinge.SetAxis(toV3(c.Axis1))
	case world.ConstraintHinge2:
		j.hinge2 = s.w.NewHinge2Joint(ode.JointGroup{})
		j.hinge2.Attach(bodyA, bodyB)
		j.hinge2.SetAnchor(toV3(c.Anchor))
		j.hinge2.SetAxis1(toV3(c.Axis1))
		j.hinge2.SetAxis2(toV3(c.Axis2))
	case world.ConstraintUniversal:
		j.universal = s.w.NewUniversalJoint(ode.JointGroup{})
		j.universal.Attach(bodyA, bodyB)
		j.universal.SetAnchor(toV3(c.Anchor))
		j.universal.SetAxis1(toV3(c.Axis1))
		j.universal.SetAxis2(toV3(c.Axis2))
	case world.ConstraintSlider:
		j.slider = s.w.NewSliderJoint(ode.JointGroup{})
		j.slider.Attach(bodyA, bodyB)
		j.slider.SetAxis(toV3(c.Axis1))
	case world.ConstraintFixed:
		j.fixed = s.w.NewFixedJoint(ode.JointGroup{})
		j.fixed.Attach(bodyA, bodyB)
		j.fixed.Fix()
	}
	s.joints[c.Name] = j
}

func (s *Sim) removeJoint(name string) {
	j, ok := s.joints[name]
	if !ok {
		return
	}
	delete(s.joints, name)
	switch j.c.Kind {
	case world.ConstraintBall:
		j.ball.Destroy()
	case world.ConstraintHinge:
		j.hinge.Destroy()
	case world.ConstraintHinge2:
		j.hinge2.Destroy()
	case world.ConstraintUniversal:
		j.universal.Destroy()
	case world.ConstraintSlider:
		j.slider.Destroy()
	case world.ConstraintFixed:
		j.fixed.Destroy()
	}
}

// finite обнуляет неконечные силы, считая случаи
func (s *Sim) finite(v mgl64.Vec3) mgl64.Vec3 {
	for i := 0; i < 3; i++ {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			s.tm.NonFiniteForce.Add(1)
			return mgl64.Vec3{}
		}
	}
	return v
}

func (s *Sim) finiteScalar(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		s.tm.NonFiniteForce.Add(1)
		return 0
	}
	return f
}
