package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/value"
)

// Constraint - соединение упорядоченной пары объектов. ObjectB может
// быть StaticWorld. Хранится в арене менеджера и адресуется индексом;
// объекты держат невладеющие ссылки-индексы на свои соединения.
type Constraint struct {
	Name string
	Kind ConstraintKind

	ObjectA string
	ObjectB string

	Anchor mgl64.Vec3
	Axis1  mgl64.Vec3
	Axis2  mgl64.Vec3

	// Отклик мотора: linear задает жесткость с нулевым демпфированием,
	// spring - жесткость и демпфирование. Остальные response-глаголы
	// принимаются, но в этом выпуске неактивны.
	Stiffness value.Float
	Damping   value.Float

	// Последние вычисленные моменты/силы мотора, доступные на чтение
	Torque value.Float
	ForceV value.Float

	index int
}

// Index возвращает позицию соединения в арене
func (c *Constraint) Index() int { return c.index }

// Motorized сообщает, активен ли отклик мотора
func (c *Constraint) Motorized() bool {
	return c.Stiffness.Get() != 0 || c.Damping.Get() != 0
}
