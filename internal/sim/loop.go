package sim

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"

	"haptic-world/internal/bus"
	"haptic-world/internal/telemetry"
)

// Имена симуляций - адреса очередей на шине сообщений
const (
	NamePhysics = "physics"
	NameHaptics = "haptics"
	NameVisual  = "visual"
)

// Stepper - хук конкретной симуляции внутри общего цикла
type Stepper interface {
	// Init вызывается на рабочем потоке до первого тика
	Init() error
	// Step выполняет один тик; dt в секундах
	Step(dt float64)
	// Cleanup разрушает сцену симуляции на ее же потоке
	Cleanup()
}

// Loop - общий драйвер цикла симуляции: фиксированный шаг,
// собственная очередь сообщений, жизненный цикл start/stop.
// Сцена симуляции принадлежит исключительно рабочему потоку цикла;
// мутации извне идут только через очередь.
type Loop struct {
	name      string
	delta     time.Duration
	selfTimed bool

	b  *bus.Bus
	tm *telemetry.Manager

	queue    *bus.Queue
	queueCap int
	apply    func(bus.Message)
	stepper  Stepper

	running atomic.Bool
	done    atomic.Bool
	loopID  atomic.Int64
	ticks   atomic.Uint64

	wg sync.WaitGroup
}

// NewLoop создает цикл симуляции. selfTimed=false означает, что темп
// задается извне (например, драйвером устройства в haptics).
func NewLoop(name string, delta time.Duration, selfTimed bool, b *bus.Bus, tm *telemetry.Manager, queueCap int) *Loop {
	return &Loop{
		name:      name,
		delta:     delta,
		selfTimed: selfTimed,
		b:         b,
		tm:        tm,
		queueCap:  queueCap,
	}
}

// SetStepper привязывает симуляцию к циклу (до Start)
func (l *Loop) SetStepper(s Stepper) { l.stepper = s }

// SetApply задает обработчик адресных сообщений очереди (до Start)
func (l *Loop) SetApply(fn func(bus.Message)) { l.apply = fn }

func (l *Loop) Name() string         { return l.name }
func (l *Loop) Delta() time.Duration { return l.delta }
func (l *Loop) Ticks() uint64        { return l.ticks.Load() }
func (l *Loop) Running() bool        { return l.running.Load() }
func (l *Loop) Bus() *bus.Bus        { return l.b }

// Start регистрирует очередь на шине и запускает рабочий поток
func (l *Loop) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	l.done.Store(false)
	l.queue = l.b.Register(l.name, l.queueCap)
	l.wg.Add(1)
	go l.run()
	log.Printf("[%s] loop started, dt=%v self_timed=%v", l.name, l.delta, l.selfTimed)
}

// Stop останавливает цикл: выставляет done, дожидается потока,
// выбрасывает остаток очереди и снимает ее с шины.
func (l *Loop) Stop() {
	if !l.running.Load() {
		return
	}
	l.done.Store(true)
	l.wg.Wait()
	l.b.Unregister(l.name)
	l.queue.Discard()
	l.running.Store(false)
	log.Printf("[%s] loop stopped after %d ticks", l.name, l.ticks.Load())
}

// Post ставит вызов в очередь цикла (без ожидания; переполнение
// считается потерей). Реализует value.Loop.
func (l *Loop) Post(fn func()) {
	l.b.Send(l.name, false, bus.Message{Fn: fn})
}

// OnLoop сообщает, выполняется ли текущая горутина на рабочем потоке
// цикла. Реализует value.Loop.
func (l *Loop) OnLoop() bool {
	return goid.Get() == l.loopID.Load()
}

// Sendto отправляет сообщение другой симуляции через шину
func (l *Loop) Sendto(target string, wait bool, m bus.Message) error {
	return l.b.Send(target, wait, m)
}

func (l *Loop) run() {
	defer l.wg.Done()
	l.loopID.Store(goid.Get())

	if l.stepper != nil {
		if err := l.stepper.Init(); err != nil {
			// симуляция отмечает себя завершенной, остальные продолжают
			log.Printf("[%s] init failed: %v", l.name, err)
			l.done.Store(true)
			return
		}
		defer l.stepper.Cleanup()
	}

	next := time.Now().Add(l.delta)
	for !l.done.Load() {
		// единственная точка приостановки помимо сна до тика:
		// ожидание очереди с дедлайном следующего тика
		drainDeadline := next
		if !l.selfTimed {
			drainDeadline = time.Now()
		}
		l.queue.Drain(l.apply, drainDeadline)
		if l.done.Load() {
			break
		}

		if l.selfTimed {
			if wait := time.Until(next); wait > 0 {
				time.Sleep(wait)
			}
		}

		if l.stepper != nil {
			l.stepper.Step(l.delta.Seconds())
		}
		l.ticks.Add(1)

		next = next.Add(l.delta)
		if behind := time.Since(next); behind > 0 {
			// цикл не уложился в шаг, тик считается пропущенным
			l.tm.MissedTicks.Add(1)
			if behind > l.delta*10 {
				log.Printf("[%s] running %v behind schedule", l.name, behind)
			}
			next = time.Now().Add(l.delta)
		}
	}
}
