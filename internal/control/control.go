package control

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/bus"
	"haptic-world/internal/config"
	"haptic-world/internal/haptics"
	"haptic-world/internal/osc"
	"haptic-world/internal/physics"
	"haptic-world/internal/sim"
	"haptic-world/internal/telemetry"
	"haptic-world/internal/visual"
	"haptic-world/internal/world"
)

// Control связывает OSC поверхность с моделью объектов и симуляциями.
// Обработчики выполняются на сетевых потоках эндпоинтов и не
// блокируются: они меняют ячейки свойств (эффект уходит в очередь
// целевой симуляции) или кладут команды на шину.
type Control struct {
	cfg *config.Config
	mgr *world.Manager
	b   *bus.Bus
	tm  *telemetry.Manager
	out *osc.Sender
	d   *osc.Dispatcher

	phys *physics.Sim
	hap  *haptics.Sim
	vis  *visual.Sim

	// мировой выключатель отчетов о столкновениях
	master *atomic.Bool

	device *haptics.SimulatedDevice // nil при настоящем устройстве
}

func New(cfg *config.Config, mgr *world.Manager, b *bus.Bus, tm *telemetry.Manager,
	out *osc.Sender, d *osc.Dispatcher,
	phys *physics.Sim, hap *haptics.Sim, vis *visual.Sim,
	master *atomic.Bool, device *haptics.SimulatedDevice) *Control {
	c := &Control{
		cfg: cfg, mgr: mgr, b: b, tm: tm, out: out, d: d,
		phys: phys, hap: hap, vis: vis, master: master, device: device,
	}
	c.registerGlobal()
	d.OnError = func(path, typetag string) {
		log.Printf("[OSC] unhandled %s [%s]", path, typetag)
	}
	return c
}

// diag логирует и отправляет диагностику пиру
func (c *Control) diag(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[World] %s", msg)
	c.out.Emit("/error", msg)
}

func (c *Control) registerGlobal() {
	d := c.d

	d.Handle("/world/sphere/create", "sfff", func(a []interface{}) {
		c.CreateObject(world.KindSphere, osc.S(a, 0), vec3(a, 1), 0)
	})
	d.Handle("/world/sphere/create", "sffff", func(a []interface{}) {
		c.CreateObject(world.KindSphere, osc.S(a, 0), vec3(a, 1), osc.F(a, 4))
	})
	d.Handle("/world/prism/create", "sfff", func(a []interface{}) {
		c.CreateObject(world.KindPrism, osc.S(a, 0), vec3(a, 1), 0)
	})
	d.Handle("/world/mesh/create", "sfffs", func(a []interface{}) {
		c.CreateMesh(osc.S(a, 0), vec3(a, 1), osc.S(a, 4))
	})

	d.Handle("/world/clear", "", func([]interface{}) { c.Clear() })
	d.Handle("/world/gravity", "f", func(a []interface{}) {
		c.setGravity(mgl64.Vec3{0, 0, osc.F(a, 0)})
	})
	d.Handle("/world/gravity", "fff", func(a []interface{}) {
		c.setGravity(vec3(a, 0))
	})
	d.Handle("/world/collide", "i", func(a []interface{}) {
		c.master.Store(osc.I(a, 0) != 0)
	})

	// соединения: имя, объект A, объект B ("world" - неподвижный мир)
	d.Handle("/world/constraint/ball/create", "sssfff", func(a []interface{}) {
		c.CreateConstraint(world.ConstraintBall, a, true, 0)
	})
	d.Handle("/world/constraint/hinge/create", "sssffffff", func(a []interface{}) {
		c.CreateConstraint(world.ConstraintHinge, a, true, 1)
	})
	d.Handle("/world/constraint/hinge2/create", "sssfffffffff", func(a []interface{}) {
		c.CreateConstraint(world.ConstraintHinge2, a, true, 2)
	})
	d.Handle("/world/constraint/universal/create", "sssfffffffff", func(a []interface{}) {
		c.CreateConstraint(world.ConstraintUniversal, a, true, 2)
	})
	d.Handle("/world/constraint/slider/create", "sssfff", func(a []interface{}) {
		c.CreateConstraint(world.ConstraintSlider, a, false, 1)
	})
	d.Handle("/world/constraint/fixed/create", "sss", func(a []interface{}) {
		c.CreateConstraint(world.ConstraintFixed, a, false, 0)
	})

	d.Handle("/physics/enable", "i", func(a []interface{}) {
		c.enableSim(c.phys.Loop, osc.I(a, 0) != 0)
	})
	d.Handle("/haptics/enable", "i", func(a []interface{}) {
		c.enableSim(c.hap.Loop, osc.I(a, 0) != 0)
	})
	d.Handle("/graphics/enable", "i", func(a []interface{}) {
		c.enableSim(c.vis.Loop, osc.I(a, 0) != 0)
	})

	if c.device != nil {
		// отладочный глагол симулируемого устройства
		d.Handle("/haptics/device/position", "fff", func(a []interface{}) {
			c.device.SetPose(vec3(a, 0))
		})
	}
}

// CreateObject создает объект и раздает его всем работающим
// симуляциям. Имя с "/" помещает объект в композит: отсутствующий
// родитель создается неявно.
func (c *Control) CreateObject(kind world.Kind, name string, pos mgl64.Vec3, radius float64) *world.Object {
	if name == "" {
		c.diag("create: empty name")
		c.tm.FailedCreates.Add(1)
		c.out.Emit("/world/drop", name)
		return nil
	}
	parent := ""
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		parent = name[:i]
		p, ok := c.mgr.Object(parent)
		if ok && p.Kind != world.KindComposite {
			c.tm.FailedCreates.Add(1)
			c.diag("create %q: parent %q is not a composite", name, parent)
			c.out.Emit("/world/drop", name)
			return nil
		}
		if !ok {
			if c.CreateObject(world.KindComposite, parent, pos, 0) == nil {
				c.out.Emit("/world/drop", name)
				return nil
			}
		}
	}

	o := world.NewObject(name, kind)
	o.Parent = parent
	o.Position.SetQuiet(pos)
	if radius > 0 {
		o.Radius.SetQuiet(radius)
	}
	if kind == world.KindCursor {
		// прокси курсора безмассовый, пока масса не задана явно
		o.Mass.SetQuiet(0)
	}
	return c.insert(o)
}

// CreateMesh создает объект-сетку, загружая геометрию из файла.
// Отсутствующий или нечитаемый файл проваливает запрос без создания.
func (c *Control) CreateMesh(name string, pos mgl64.Vec3, filename string) *world.Object {
	mesh, err := world.LoadOBJ(filename)
	if err != nil {
		c.tm.FailedCreates.Add(1)
		c.diag("create mesh %q: %v", name, err)
		c.out.Emit("/world/drop", name)
		return nil
	}
	o := world.NewObject(name, world.KindMesh)
	o.Position.SetQuiet(pos)
	o.Filename = filename
	o.Mesh = mesh
	return c.insert(o)
}

// insert регистрирует готовую запись объекта и раздает ее симуляциям
func (c *Control) insert(o *world.Object) *world.Object {
	o.Stiffness.SetQuiet(c.cfg.HapticStiffness)
	if err := c.mgr.AddObject(o); err != nil {
		c.tm.FailedCreates.Add(1)
		c.diag("create %s %q: %v", o.Kind, o.Name, err)
		c.out.Emit("/world/drop", o.Name)
		return nil
	}
	c.bindProperties(o)
	c.registerObjectVerbs(o)
	c.b.Broadcast(false, bus.Message{Path: "/object/create", Args: []interface{}{o}})
	pos := o.Position.Get()
	log.Printf("[World] created %s %q at (%.3f, %.3f, %.3f)", o.Kind, o.Name, pos.X(), pos.Y(), pos.Z())
	return o
}

// DestroyObject разрушает объект, его детей и все соединения,
// ссылающиеся на них
func (c *Control) DestroyObject(name string) {
	_, objs, cons, err := c.mgr.RemoveObject(name)
	if err != nil {
		c.diag("destroy %q: %v", name, err)
		return
	}
	for _, o := range objs {
		c.d.UnhandlePrefix("/world/" + o.Name)
	}
	for _, cn := range cons {
		c.d.UnhandlePrefix("/constraint/" + cn.Name)
	}
	c.b.Broadcast(false, bus.Message{Path: "/object/destroy", Args: []interface{}{objs, cons}})
	log.Printf("[World] destroyed %q (+%d children, %d constraints)", name, len(objs)-1, len(cons))
}

// Clear разрушает все объекты и соединения сцены
func (c *Control) Clear() {
	objs, cons := c.mgr.Clear()
	for _, o := range objs {
		c.d.UnhandlePrefix("/world/" + o.Name)
	}
	for _, cn := range cons {
		c.d.UnhandlePrefix("/constraint/" + cn.Name)
	}
	c.b.Broadcast(false, bus.Message{Path: "/clear"})
	log.Printf("[World] cleared %d objects, %d constraints", len(objs), len(cons))
}

// bindProperties привязывает колбеки ячеек к целевым симуляциям.
// Все побочные эффекты установки свойства выполняются ровно на одном
// назначенном потоке.
func (c *Control) bindProperties(o *world.Object) {
	name := o.Name
	o.Position.OnSet(c.phys.Loop, func(v mgl64.Vec3) { c.phys.SetPosition(name, v) })
	o.Rotation.OnSet(c.phys.Loop, func(m mgl64.Mat3) { c.phys.SetRotation(name, m) })
	o.Velocity.OnSet(c.phys.Loop, func(v mgl64.Vec3) { c.phys.SetVelocity(name, v) })
	o.Mass.OnSet(c.phys.Loop, func(float64) { c.phys.SetMass(name) })
	o.Radius.OnSet(c.phys.Loop, func(float64) { c.phys.Rebuild(name) })
	o.Size.OnSet(c.phys.Loop, func(mgl64.Vec3) { c.phys.Rebuild(name) })

	if o.Kind == world.KindCursor {
		// сила на курсоре - наложение на устройство с затуханием
		o.Force.OnSet(c.hap.Loop, func(v mgl64.Vec3) { c.hap.ExtraForce(v) })
	} else {
		o.Force.OnSet(c.phys.Loop, func(v mgl64.Vec3) { c.phys.AddForce(name, v) })
	}

	touch := func() {
		c.b.Send(sim.NameVisual, false, bus.Message{Path: "/touch", Args: []interface{}{name}})
	}
	o.Color.OnSet(c.vis.Loop, func(mgl64.Vec3) { touch() })
	o.Visible.OnSet(c.vis.Loop, func(bool) { touch() })
	o.TextureImage.OnSet(c.vis.Loop, func(string) { touch() })
}

// registerObjectVerbs публикует OSC глаголы объекта
func (c *Control) registerObjectVerbs(o *world.Object) {
	d := c.d
	name := o.Name
	base := "/world/" + name

	d.Handle(base+"/destroy", "", func([]interface{}) { c.DestroyObject(name) })
	d.Handle(base+"/mass", "f", func(a []interface{}) { o.Mass.Set(osc.F(a, 0)) })
	d.Handle(base+"/position", "fff", func(a []interface{}) { o.Position.Set(vec3(a, 0)) })
	d.Handle(base+"/rotation", "fffffffff", func(a []interface{}) { o.Rotation.Set(mat3(a)) })
	d.Handle(base+"/velocity", "fff", func(a []interface{}) { o.Velocity.Set(vec3(a, 0)) })
	d.Handle(base+"/force", "fff", func(a []interface{}) { o.Force.Set(vec3(a, 0)) })
	d.Handle(base+"/color", "fff", func(a []interface{}) { o.Color.Set(vec3(a, 0)) })
	d.Handle(base+"/friction/static", "f", func(a []interface{}) { o.FrictionStatic.Set(osc.F(a, 0)) })
	d.Handle(base+"/friction/dynamic", "f", func(a []interface{}) { o.FrictionDynamic.Set(osc.F(a, 0)) })
	d.Handle(base+"/texture/image", "s", func(a []interface{}) { o.TextureImage.Set(osc.S(a, 0)) })
	d.Handle(base+"/collide", "i", func(a []interface{}) { o.Collide.Set(osc.I(a, 0) != 0) })
	d.Handle(base+"/visible", "i", func(a []interface{}) { o.Visible.Set(osc.I(a, 0) != 0) })

	d.Handle(base+"/grab", "", func([]interface{}) {
		c.hap.Loop.Post(func() { c.hap.Grab(o) })
	})
	d.Handle(base+"/grab", "i", func(a []interface{}) {
		grab := osc.I(a, 0) != 0
		c.hap.Loop.Post(func() {
			if grab {
				c.hap.Grab(o)
			} else {
				c.hap.Grab(nil)
			}
		})
	})

	d.Handle(base+"/oscillate", "ff", func(a []interface{}) {
		hz, amp := osc.F(a, 0), osc.F(a, 1)
		c.phys.Loop.Post(func() { c.phys.Oscillate(name, hz, amp) })
	})

	// контактная сила haptics->physics; принимается и с сети
	d.Handle(base+"/push", "ffffff", func(a []interface{}) {
		c.b.Send(sim.NamePhysics, false, bus.Message{Path: base + "/push", Args: a})
	})

	switch o.Kind {
	case world.KindSphere:
		d.Handle(base+"/radius", "f", func(a []interface{}) { o.Radius.Set(osc.F(a, 0)) })
	case world.KindPrism:
		d.Handle(base+"/size", "fff", func(a []interface{}) { o.Size.Set(vec3(a, 0)) })
	case world.KindMesh:
		d.Handle(base+"/size", "fff", func(a []interface{}) { o.Size.Set(vec3(a, 0)) })
		d.Handle(base+"/size", "f", func(a []interface{}) {
			u := osc.F(a, 0)
			o.Size.Set(mgl64.Vec3{u, u, u})
		})
	}
}

// CreateConstraint создает соединение из аргументов create-глагола:
// имя, объект A, объект B, затем якорь (если hasAnchor) и axes осей
func (c *Control) CreateConstraint(kind world.ConstraintKind, a []interface{}, hasAnchor bool, axes int) {
	cn := &world.Constraint{
		Name:    osc.S(a, 0),
		Kind:    kind,
		ObjectA: osc.S(a, 1),
		ObjectB: osc.S(a, 2),
	}
	i := 3
	if hasAnchor {
		cn.Anchor = vec3(a, i)
		i += 3
	}
	if axes >= 1 {
		cn.Axis1 = vec3(a, i)
		i += 3
	}
	if axes >= 2 {
		cn.Axis2 = vec3(a, i)
	}

	if err := c.mgr.AddConstraint(cn); err != nil {
		c.tm.FailedCreates.Add(1)
		c.diag("create constraint %s %q: %v", kind, cn.Name, err)
		return
	}
	c.registerConstraintVerbs(cn)
	c.b.Broadcast(false, bus.Message{Path: "/constraint/create", Args: []interface{}{cn}})
	log.Printf("[World] created %s constraint %q: %s <-> %s", kind, cn.Name, cn.ObjectA, cn.ObjectB)
}

// DestroyConstraint разрушает соединение по имени
func (c *Control) DestroyConstraint(name string) {
	cn, err := c.mgr.RemoveConstraint(name)
	if err != nil {
		c.diag("destroy constraint %q: %v", name, err)
		return
	}
	c.d.UnhandlePrefix("/constraint/" + name)
	c.b.Broadcast(false, bus.Message{Path: "/constraint/destroy", Args: []interface{}{cn}})
}

func (c *Control) registerConstraintVerbs(cn *world.Constraint) {
	d := c.d
	name := cn.Name
	base := "/constraint/" + name

	d.Handle(base+"/destroy", "", func([]interface{}) { c.DestroyConstraint(name) })
	d.Handle(base+"/response/linear", "f", func(a []interface{}) {
		cn.Stiffness.Set(osc.F(a, 0))
		cn.Damping.Set(0)
	})
	d.Handle(base+"/response/spring", "ff", func(a []interface{}) {
		cn.Stiffness.Set(osc.F(a, 0))
		cn.Damping.Set(osc.F(a, 1))
	})

	// принимаются, но в этом выпуске неактивны
	inactive := func(verb string) osc.Handler {
		return func([]interface{}) {
			log.Printf("[World] constraint %q: response/%s accepted but inactive", name, verb)
		}
	}
	d.Handle(base+"/response/center", "f", inactive("center"))
	d.Handle(base+"/response/constant", "f", inactive("constant"))
	d.Handle(base+"/response/wall", "ff", inactive("wall"))
	d.Handle(base+"/response/wall", "ffi", inactive("wall"))
	d.Handle(base+"/response/pluck", "ff", inactive("pluck"))
}

func (c *Control) setGravity(g mgl64.Vec3) {
	c.phys.Loop.Post(func() { c.phys.SetGravity(g) })
}

// enableSim запускает или останавливает цикл симуляции. При запуске
// сцена досылается в новую очередь: объекты (родители раньше детей),
// затем соединения.
func (c *Control) enableSim(l *sim.Loop, enable bool) {
	if !enable {
		l.Stop()
		return
	}
	if l.Running() {
		return
	}
	l.Start()
	objs := c.mgr.Objects()
	sort.Slice(objs, func(i, j int) bool {
		return strings.Count(objs[i].Name, "/") < strings.Count(objs[j].Name, "/")
	})
	for _, o := range objs {
		c.b.Send(l.Name(), false, bus.Message{Path: "/object/create", Args: []interface{}{o}})
	}
	for _, cn := range c.mgr.Constraints() {
		c.b.Send(l.Name(), false, bus.Message{Path: "/constraint/create", Args: []interface{}{cn}})
	}
}

func vec3(a []interface{}, i int) mgl64.Vec3 {
	return mgl64.Vec3{osc.F(a, i), osc.F(a, i+1), osc.F(a, i+2)}
}

func mat3(a []interface{}) mgl64.Mat3 {
	var m mgl64.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, osc.F(a, i*3+j))
		}
	}
	return m
}
