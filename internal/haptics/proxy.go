package haptics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/world"
)

// MeshDetector - внешний детектор столкновений с треугольной сеткой:
// ближайшая точка поверхности и глубина проникновения.
type MeshDetector interface {
	Closest(mesh *world.TriMesh, scale float64, pos mgl64.Vec3, rot mgl64.Mat3,
		p mgl64.Vec3) (surface mgl64.Vec3, depth float64, ok bool)
}

type collider struct {
	obj     *world.Object
	enabled bool
}

// ProxyAlgorithm - поверхностный прокси: безмассовая точка, отстающая
// от устройства и остающаяся снаружи поверхностей. Сила равна
// k*(proxy - device). Трансформации объектов перечитываются на каждом
// тике, поэтому движущиеся препятствия обрабатываются корректно.
type ProxyAlgorithm struct {
	defaultK  float64
	colliders map[string]*collider
	meshDet   MeshDetector // nil: сетка приближается ограничивающей сферой

	contactObj   *world.Object
	contactPoint mgl64.Vec3
}

func NewProxyAlgorithm(defaultStiffness float64) *ProxyAlgorithm {
	return &ProxyAlgorithm{
		defaultK:  defaultStiffness,
		colliders: make(map[string]*collider),
	}
}

// Add включает объект в haptic контакт
func (a *ProxyAlgorithm) Add(o *world.Object) {
	switch o.Kind {
	case world.KindCursor, world.KindComposite:
		// курсор не контактирует сам с собой, композит
		// представлен геометрией детей
		return
	}
	a.colliders[o.Name] = &collider{obj: o, enabled: true}
}

// Remove исключает объект из haptic контакта
func (a *ProxyAlgorithm) Remove(name string) {
	delete(a.colliders, name)
}

// SetEnabled управляет участием объекта в контакте (захват выключает)
func (a *ProxyAlgorithm) SetEnabled(name string, enabled bool) {
	if c, ok := a.colliders[name]; ok {
		c.enabled = enabled
	}
}

// ContactObject возвращает объект текущего контакта, если есть
func (a *ProxyAlgorithm) ContactObject() *world.Object { return a.contactObj }

// ContactPoint возвращает точку текущего контакта
func (a *ProxyAlgorithm) ContactPoint() mgl64.Vec3 { return a.contactPoint }

// Update вычисляет суммарную силу взаимодействия для позиции
// устройства. Первый проникнутый объект становится контактным.
func (a *ProxyAlgorithm) Update(device mgl64.Vec3) mgl64.Vec3 {
	a.contactObj = nil
	var total mgl64.Vec3
	for _, c := range a.colliders {
		if !c.enabled {
			continue
		}
		surface, ok := a.closestSurface(c.obj, device)
		if !ok {
			continue
		}
		k := c.obj.Stiffness.Get()
		if k <= 0 {
			k = a.defaultK
		}
		total = total.Add(surface.Sub(device).Mul(k))
		if a.contactObj == nil {
			a.contactObj = c.obj
			a.contactPoint = surface
		}
	}
	return total
}

// closestSurface возвращает ближайшую точку поверхности, если
// устройство проникло внутрь объекта
func (a *ProxyAlgorithm) closestSurface(o *world.Object, p mgl64.Vec3) (mgl64.Vec3, bool) {
	switch o.Kind {
	case world.KindSphere:
		center := o.Position.Get()
		r := o.Radius.Get()
		d := p.Sub(center)
		dist := d.Len()
		if dist >= r || r <= 0 {
			return mgl64.Vec3{}, false
		}
		if dist == 0 {
			// инструмент в центре, выталкиваем вверх
			return center.Add(mgl64.Vec3{0, 0, r}), true
		}
		return center.Add(d.Mul(r / dist)), true

	case world.KindPrism:
		center := o.Position.Get()
		rot := o.Rotation.Get()
		half := o.Size.Get().Mul(0.5)
		local := rot.Transpose().Mul3x1(p.Sub(center))
		// внутри, если каждая компонента в пределах полугабарита
		minPen := math.MaxFloat64
		axis := 0
		for i := 0; i < 3; i++ {
			pen := half[i] - math.Abs(local[i])
			if pen <= 0 {
				return mgl64.Vec3{}, false
			}
			if pen < minPen {
				minPen = pen
				axis = i
			}
		}
		surf := local
		if surf[axis] >= 0 {
			surf[axis] = half[axis]
		} else {
			surf[axis] = -half[axis]
		}
		return center.Add(rot.Mul3x1(surf)), true

	case world.KindMesh:
		scale := o.Size.Get().X()
		if scale == 0 {
			scale = 1
		}
		if a.meshDet != nil {
			surf, _, ok := a.meshDet.Closest(o.Mesh, scale, o.Position.Get(), o.Rotation.Get(), p)
			return surf, ok
		}
		// без внешнего детектора сетка ведет себя как ограничивающая сфера
		center := o.Position.Get()
		r := o.Mesh.Bounds() * scale
		d := p.Sub(center)
		dist := d.Len()
		if dist >= r || r <= 0 {
			return mgl64.Vec3{}, false
		}
		if dist == 0 {
			return center.Add(mgl64.Vec3{0, 0, r}), true
		}
		return center.Add(d.Mul(r / dist)), true
	}
	return mgl64.Vec3{}, false
}

// PotentialAlgorithm - алгоритм потенциального поля для объектов,
// излучающих поле. По умолчанию не заполняется; опрашивается, когда
// поверхностный прокси не нашел контакта.
type PotentialAlgorithm struct {
	emitters map[string]*world.Object

	contactObj   *world.Object
	contactPoint mgl64.Vec3
}

func NewPotentialAlgorithm() *PotentialAlgorithm {
	return &PotentialAlgorithm{emitters: make(map[string]*world.Object)}
}

func (a *PotentialAlgorithm) Add(o *world.Object) { a.emitters[o.Name] = o }
func (a *PotentialAlgorithm) Remove(name string)  { delete(a.emitters, name) }

func (a *PotentialAlgorithm) ContactObject() *world.Object { return a.contactObj }
func (a *PotentialAlgorithm) ContactPoint() mgl64.Vec3     { return a.contactPoint }

// Update вычисляет силу поля: притяжение к излучателю, спадающее
// с квадратом расстояния
func (a *PotentialAlgorithm) Update(device mgl64.Vec3) mgl64.Vec3 {
	a.contactObj = nil
	var total mgl64.Vec3
	for _, o := range a.emitters {
		d := o.Position.Get().Sub(device)
		dist := d.Len()
		if dist < 1e-6 {
			continue
		}
		total = total.Add(d.Mul(1 / (dist * dist * dist)))
		if a.contactObj == nil {
			a.contactObj = o
			a.contactPoint = device
		}
	}
	return total
}
