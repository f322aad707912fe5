package world

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/value"
)

// Object - общая запись объекта сцены. Публичные свойства - ячейки,
// читаемые из любого потока; каждая симуляция держит собственное
// представление (тело, коллайдер, зеркало), разделяя с остальными
// только имя и последние опубликованные свойства.
type Object struct {
	Name string
	Kind Kind

	Position value.Vec3
	Rotation value.Mat3
	Velocity value.Vec3
	Accel    value.Vec3
	// Force - разовая внешняя сила; физика применяет и сбрасывает ее,
	// haptics накладывает ее на устройство с затуханием
	Force value.Vec3
	Color value.Vec3

	FrictionStatic  value.Float
	FrictionDynamic value.Float
	// Stiffness - жесткость поверхности для haptic прокси
	Stiffness value.Float

	TextureImage value.Str
	Collide      value.Bool
	Visible      value.Bool
	Mass         value.Float

	Radius value.Float // sphere
	Size   value.Vec3  // prism: полные габариты; mesh: масштаб

	Filename string // mesh
	Mesh     *TriMesh

	// Parent - имя композита-родителя, пустое для корневых объектов
	Parent string

	mu          sync.Mutex
	children    []string
	constraints []int // индексы в арене соединений, ссылки невладеющие
	lastContact map[string]uint64
}

// NewObject создает запись объекта с умолчаниями
func NewObject(name string, kind Kind) *Object {
	o := &Object{
		Name:        name,
		Kind:        kind,
		lastContact: make(map[string]uint64),
	}
	o.Rotation.SetQuiet(mgl64.Ident3())
	o.Color.SetQuiet(mgl64.Vec3{0.5, 0.5, 0.5})
	o.FrictionStatic.SetQuiet(0.5)
	o.FrictionDynamic.SetQuiet(0.3)
	o.Visible.SetQuiet(true)
	o.Mass.SetQuiet(DefaultMass)
	o.Radius.SetQuiet(DefaultRadius)
	o.Size.SetQuiet(mgl64.Vec3{DefaultExtent, DefaultExtent, DefaultExtent})
	return o
}

const (
	// Масса по умолчанию делает новые объекты динамическими
	DefaultMass   = 0.1
	DefaultRadius = 0.1
	// Габариты призмы задаются полными размерами, не полуразмерами
	DefaultExtent = 0.1
)

// Dynamic сообщает, подвержен ли объект силам и интегрированию.
// Нулевая масса означает кинематический объект.
func (o *Object) Dynamic() bool { return o.Mass.Get() > 0 }

// Children возвращает копию списка детей композита
func (o *Object) Children() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.children))
	copy(out, o.children)
	return out
}

func (o *Object) adoptChild(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.children = append(o.children, name)
}

func (o *Object) dropChild(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range o.children {
		if c == name {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return
		}
	}
}

// ConstraintIndices возвращает копию списка соединений объекта
func (o *Object) ConstraintIndices() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]int, len(o.constraints))
	copy(out, o.constraints)
	return out
}

func (o *Object) linkConstraint(idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.constraints = append(o.constraints, idx)
}

func (o *Object) unlinkConstraint(idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range o.constraints {
		if c == idx {
			o.constraints = append(o.constraints[:i], o.constraints[i+1:]...)
			return
		}
	}
}

// FreshContact регистрирует контакт с партнером на шаге step и
// сообщает, начался ли новый эпизод контакта. Эпизод считается
// непрерывным, пока контакт виден на каждом следующем шаге; событие
// столкновения испускается не чаще одного раза за эпизод.
func (o *Object) FreshContact(partner string, step uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	last, seen := o.lastContact[partner]
	o.lastContact[partner] = step
	return !seen || last != step-1
}

// ForgetContact убирает партнера из словаря контактов (разрушение)
func (o *Object) ForgetContact(partner string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.lastContact, partner)
}
