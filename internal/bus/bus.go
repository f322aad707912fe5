package bus

import (
	"fmt"
	"sync"
	"time"

	"haptic-world/internal/telemetry"
)

// Message переносит либо закодированное OSC сообщение (Path/TypeTag/Args),
// либо прямой вызов (Fn), который будет исполнен в потоке получателя.
type Message struct {
	Path    string
	TypeTag string
	Args    []interface{}
	Fn      func()

	ack chan struct{} // не nil, когда отправитель ждет обработки
}

// Queue - ограниченная MPSC очередь одной симуляции.
// Producers: любые потоки. Consumer: только рабочий поток симуляции.
// FIFO внутри очереди; глобального порядка между очередями нет.
type Queue struct {
	name string
	ch   chan Message
	tm   *telemetry.Manager
}

// Name возвращает имя симуляции-владельца
func (q *Queue) Name() string { return q.name }

// Len возвращает примерное число ожидающих сообщений
func (q *Queue) Len() int { return len(q.ch) }

// put кладет сообщение в очередь. При wait=false переполненная очередь
// отбрасывает сообщение, инкрементируя счетчик потерь.
func (q *Queue) put(m Message, wait bool) bool {
	if wait {
		q.ch <- m
		return true
	}
	select {
	case q.ch <- m:
		return true
	default:
		q.tm.DroppedMsgs.Add(1)
		return false
	}
}

// Drain обрабатывает все ожидающие сообщения. Если очередь пуста,
// блокируется до первого сообщения либо до deadline. Это единственная
// точка, где рабочий поток приостанавливается вне sleep-до-тика.
func (q *Queue) Drain(apply func(Message), deadline time.Time) {
	first := true
	for {
		if first {
			first = false
			wait := time.Until(deadline)
			if wait <= 0 {
				// дедлайн уже прошел, забираем только готовое
				select {
				case m := <-q.ch:
					consume(apply, m)
					continue
				default:
					return
				}
			}
			timer := time.NewTimer(wait)
			select {
			case m := <-q.ch:
				timer.Stop()
				consume(apply, m)
				continue
			case <-timer.C:
				return
			}
		}
		select {
		case m := <-q.ch:
			consume(apply, m)
		default:
			return
		}
	}
}

// Discard выбрасывает все накопленные сообщения (останов симуляции),
// освобождая ожидающих отправителей.
func (q *Queue) Discard() {
	for {
		select {
		case m := <-q.ch:
			if m.ack != nil {
				close(m.ack)
			}
		default:
			return
		}
	}
}

func consume(apply func(Message), m Message) {
	if m.Fn != nil {
		m.Fn()
	} else if apply != nil {
		apply(m)
	}
	if m.ack != nil {
		close(m.ack)
	}
}

// Bus держит по одной очереди на каждую работающую симуляцию
type Bus struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	tm     *telemetry.Manager
}

// New создает шину сообщений между симуляциями
func New(tm *telemetry.Manager) *Bus {
	return &Bus{
		queues: make(map[string]*Queue),
		tm:     tm,
	}
}

// Register создает очередь для симуляции с указанным именем
func (b *Bus) Register(name string, capacity int) *Queue {
	q := &Queue{
		name: name,
		ch:   make(chan Message, capacity),
		tm:   b.tm,
	}
	b.mu.Lock()
	b.queues[name] = q
	b.mu.Unlock()
	return q
}

// Unregister удаляет очередь симуляции из шины
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	delete(b.queues, name)
	b.mu.Unlock()
}

// Send доставляет сообщение в очередь симуляции target.
// wait=true блокирует до обработки сообщения получателем.
func (b *Bus) Send(target string, wait bool, m Message) error {
	b.mu.RLock()
	q, ok := b.queues[target]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("bus: unknown target %q", target)
	}
	if wait {
		m.ack = make(chan struct{})
		q.put(m, true)
		<-m.ack
		return nil
	}
	q.put(m, false)
	return nil
}

// Broadcast кладет копию сообщения в каждую зарегистрированную очередь.
// При wait=true дожидается обработки всеми получателями.
func (b *Bus) Broadcast(wait bool, m Message) {
	b.mu.RLock()
	targets := make([]*Queue, 0, len(b.queues))
	for _, q := range b.queues {
		targets = append(targets, q)
	}
	b.mu.RUnlock()

	var acks []chan struct{}
	for _, q := range targets {
		copied := m
		if wait {
			copied.ack = make(chan struct{})
			acks = append(acks, copied.ack)
		}
		q.put(copied, wait)
	}
	for _, ack := range acks {
		<-ack
	}
}

// Post кладет прямой вызов в очередь target без ожидания
func (b *Bus) Post(target string, fn func()) error {
	return b.Send(target, false, Message{Fn: fn})
}
