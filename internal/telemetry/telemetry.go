package telemetry

import (
	"log"
	"sync/atomic"
	"time"
)

// Counters собирает счетчики ошибок и событий со всех подсистем.
// Все поля атомарные, инкременты допустимы из любого потока.
type Counters struct {
	MalformedOSC   atomic.Uint64 // некорректные OSC сообщения (протокол)
	UnknownPath    atomic.Uint64 // сообщения на незарегистрированный путь
	DroppedMsgs    atomic.Uint64 // сообщения, отброшенные переполненной очередью
	MissedTicks    atomic.Uint64 // пропущенные тики циклов симуляции
	NonFiniteForce atomic.Uint64 // NaN/Inf силы, обнуленные перед применением
	Collisions     atomic.Uint64 // зарегистрированные столкновения
	FailedCreates  atomic.Uint64 // отклоненные запросы на создание объектов
}

// Manager управляет сбором и периодическим выводом статистики
type Manager struct {
	Counters

	enabled       atomic.Bool
	lastPrint     time.Time
	printInterval time.Duration
}

// NewManager создает новый менеджер телеметрии
func NewManager() *Manager {
	m := &Manager{
		lastPrint:     time.Now(),
		printInterval: 5 * time.Second,
	}
	m.enabled.Store(true)
	return m
}

// SetEnabled включает или выключает периодический вывод статистики
func (m *Manager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// Stats возвращает текущие значения счетчиков
func (m *Manager) Stats() map[string]uint64 {
	return map[string]uint64{
		"malformed_osc":    m.MalformedOSC.Load(),
		"unknown_path":     m.UnknownPath.Load(),
		"dropped_msgs":     m.DroppedMsgs.Load(),
		"missed_ticks":     m.MissedTicks.Load(),
		"non_finite_force": m.NonFiniteForce.Load(),
		"collisions":       m.Collisions.Load(),
		"failed_creates":   m.FailedCreates.Load(),
	}
}

// MaybePrint выводит статистику, если прошел интервал печати.
// Вызывается из медленного цикла (визуального), не из haptics.
func (m *Manager) MaybePrint() {
	if !m.enabled.Load() {
		return
	}
	if time.Since(m.lastPrint) < m.printInterval {
		return
	}
	m.lastPrint = time.Now()

	dropped := m.DroppedMsgs.Load()
	missed := m.MissedTicks.Load()
	malformed := m.MalformedOSC.Load()
	if dropped == 0 && missed == 0 && malformed == 0 {
		return
	}
	log.Printf("[Telemetry] dropped=%d missed=%d malformed=%d unknown=%d nonfinite=%d collisions=%d",
		dropped, missed, malformed, m.UnknownPath.Load(),
		m.NonFiniteForce.Load(), m.Collisions.Load())
}
