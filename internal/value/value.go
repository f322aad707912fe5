package value

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// Loop - поток симуляции, на котором исполняются побочные эффекты
// установки значения. Реализуется циклом симуляции (internal/sim).
type Loop interface {
	// Post ставит вызов в очередь цикла
	Post(fn func())
	// OnLoop сообщает, выполняется ли текущая горутина внутри цикла
	OnLoop() bool
}

// Ячейки свойств: типизированные наблюдаемые значения с атомарным
// хранением. Чтение допустимо из любого потока (значения не рвутся),
// читатель может видеть значение, устаревшее не более чем на один тик.
// Побочный эффект Set исполняется ровно на одном целевом потоке:
// либо немедленно (вызывающий уже на нем), либо через его очередь.

func dispatch(target Loop, fn func()) {
	if fn == nil {
		return
	}
	if target == nil || target.OnLoop() {
		fn()
		return
	}
	target.Post(fn)
}

// Float - скалярная ячейка
type Float struct {
	bits   atomic.Uint64
	target Loop
	cb     func(float64)
}

func (f *Float) Get() float64 { return math.Float64frombits(f.bits.Load()) }

// SetQuiet сохраняет значение без вызова колбека (публикация состояния
// потоком-владельцем).
func (f *Float) SetQuiet(v float64) { f.bits.Store(math.Float64bits(v)) }

func (f *Float) Set(v float64) {
	f.SetQuiet(v)
	if f.cb == nil {
		return
	}
	dispatch(f.target, func() { f.cb(v) })
}

// OnSet привязывает колбек установки к целевому потоку
func (f *Float) OnSet(target Loop, cb func(float64)) {
	f.target, f.cb = target, cb
}

// Int - целочисленная ячейка
type Int struct {
	v      atomic.Int64
	target Loop
	cb     func(int64)
}

func (i *Int) Get() int64     { return i.v.Load() }
func (i *Int) SetQuiet(v int64) { i.v.Store(v) }
func (i *Int) Set(v int64) {
	i.SetQuiet(v)
	if i.cb == nil {
		return
	}
	dispatch(i.target, func() { i.cb(v) })
}
func (i *Int) OnSet(target Loop, cb func(int64)) { i.target, i.cb = target, cb }

// Bool - логическая ячейка
type Bool struct {
	v      atomic.Bool
	target Loop
	cb     func(bool)
}

func (b *Bool) Get() bool       { return b.v.Load() }
func (b *Bool) SetQuiet(v bool) { b.v.Store(v) }
func (b *Bool) Set(v bool) {
	b.SetQuiet(v)
	if b.cb == nil {
		return
	}
	dispatch(b.target, func() { b.cb(v) })
}
func (b *Bool) OnSet(target Loop, cb func(bool)) { b.target, b.cb = target, cb }

// Str - строковая ячейка (короткие строки: имена файлов, текстуры)
type Str struct {
	p      atomic.Pointer[string]
	target Loop
	cb     func(string)
}

func (s *Str) Get() string {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return ""
}
func (s *Str) SetQuiet(v string) { s.p.Store(&v) }
func (s *Str) Set(v string) {
	s.SetQuiet(v)
	if s.cb == nil {
		return
	}
	dispatch(s.target, func() { s.cb(v) })
}
func (s *Str) OnSet(target Loop, cb func(string)) { s.target, s.cb = target, cb }

// Vec3 - ячейка трехмерного вектора. Вектор хранится целиком за
// одним указателем, чтение никогда не возвращает смесь компонент.
type Vec3 struct {
	p      atomic.Pointer[mgl64.Vec3]
	target Loop
	cb     func(mgl64.Vec3)
}

func (v *Vec3) Get() mgl64.Vec3 {
	if p := v.p.Load(); p != nil {
		return *p
	}
	return mgl64.Vec3{}
}
func (v *Vec3) SetQuiet(val mgl64.Vec3) { v.p.Store(&val) }
func (v *Vec3) Set(val mgl64.Vec3) {
	v.SetQuiet(val)
	if v.cb == nil {
		return
	}
	dispatch(v.target, func() { v.cb(val) })
}
func (v *Vec3) OnSet(target Loop, cb func(mgl64.Vec3)) { v.target, v.cb = target, cb }

// Mat3 - ячейка матрицы вращения 3x3
type Mat3 struct {
	p      atomic.Pointer[mgl64.Mat3]
	target Loop
	cb     func(mgl64.Mat3)
}

func (m *Mat3) Get() mgl64.Mat3 {
	if p := m.p.Load(); p != nil {
		return *p
	}
	return mgl64.Ident3()
}
func (m *Mat3) SetQuiet(val mgl64.Mat3) { m.p.Store(&val) }
func (m *Mat3) Set(val mgl64.Mat3) {
	m.SetQuiet(val)
	if m.cb == nil {
		return
	}
	dispatch(m.target, func() { m.cb(val) })
}
func (m *Mat3) OnSet(target Loop, cb func(mgl64.Mat3)) { m.target, m.cb = target, cb }
