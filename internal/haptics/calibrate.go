package haptics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Calibration - адаптивное отображение наблюдаемого рабочего объема
// устройства в куб [-1,1]^3. Первая выборка засевает границы, каждая
// следующая расширяет их покомпонентно.
type Calibration struct {
	min, max mgl64.Vec3
	seeded   bool
}

// Map расширяет огибающую и возвращает нормализованную позицию
func (c *Calibration) Map(raw mgl64.Vec3) mgl64.Vec3 {
	if !c.seeded {
		c.min, c.max = raw, raw
		c.seeded = true
	}
	for i := 0; i < 3; i++ {
		if raw[i] < c.min[i] {
			c.min[i] = raw[i]
		}
		if raw[i] > c.max[i] {
			c.max[i] = raw[i]
		}
	}
	var p mgl64.Vec3
	for i := 0; i < 3; i++ {
		span := c.max[i] - c.min[i]
		if span == 0 {
			// огибающая по оси вырождена, центр куба
			p[i] = 0
			continue
		}
		scale := 2 / span
		offset := -(c.max[i] + c.min[i]) / 2
		p[i] = (raw[i] + offset) * scale
	}
	return p
}

// Reset забывает накопленную огибающую
func (c *Calibration) Reset() {
	c.seeded = false
}
