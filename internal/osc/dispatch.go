package osc

import (
	"strings"
	"sync"

	goosc "github.com/hypebeast/go-osc/osc"

	"haptic-world/internal/telemetry"
)

// Handler обрабатывает входящее сообщение. Вызывается на сетевом
// потоке эндпоинта и не должен блокироваться: допустимо только
// изменить ячейку свойства (что отложит эффект в очередь целевой
// симуляции) или положить команду на шину.
type Handler func(args []interface{})

// Dispatcher маршрутизирует сообщения по точному совпадению пути и
// строки типов. На одном пути допустимы перегрузки с разными типами.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler

	tm *telemetry.Manager

	// OnError вызывается для некорректных и нераспознанных сообщений
	OnError func(path, typetag string)
}

func NewDispatcher(tm *telemetry.Manager) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]map[string]Handler),
		tm:       tm,
	}
}

// Handle регистрирует обработчик для пути и строки типов
func (d *Dispatcher) Handle(path, typetag string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byTag, ok := d.handlers[path]
	if !ok {
		byTag = make(map[string]Handler)
		d.handlers[path] = byTag
	}
	byTag[typetag] = h
}

// UnhandlePrefix снимает все обработчики путей с данным префиксом
// (разрушение объекта снимает все его глаголы)
func (d *Dispatcher) UnhandlePrefix(prefix string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path := range d.handlers {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			delete(d.handlers, path)
		}
	}
}

// Dispatch реализует goosc.Dispatcher
func (d *Dispatcher) Dispatch(packet goosc.Packet) {
	switch p := packet.(type) {
	case *goosc.Message:
		d.dispatchMessage(p)
	case *goosc.Bundle:
		for _, msg := range p.Messages {
			d.dispatchMessage(msg)
		}
		for _, b := range p.Bundles {
			d.Dispatch(b)
		}
	default:
		d.tm.MalformedOSC.Add(1)
	}
}

func (d *Dispatcher) dispatchMessage(msg *goosc.Message) {
	if msg == nil || msg.Address == "" || msg.Address[0] != '/' {
		d.tm.MalformedOSC.Add(1)
		return
	}
	tag := TypeTag(msg.Arguments)

	d.mu.RLock()
	byTag, okPath := d.handlers[msg.Address]
	var h Handler
	if okPath {
		h = byTag[tag]
	}
	d.mu.RUnlock()

	if h == nil {
		if okPath {
			d.tm.MalformedOSC.Add(1)
		} else {
			d.tm.UnknownPath.Add(1)
		}
		if d.OnError != nil {
			d.OnError(msg.Address, tag)
		}
		return
	}
	h(msg.Arguments)
}

// TypeTag вычисляет строку типов аргументов в нотации OSC
func TypeTag(args []interface{}) string {
	var sb strings.Builder
	for _, a := range args {
		switch a.(type) {
		case float32:
			sb.WriteByte('f')
		case float64:
			sb.WriteByte('d')
		case int32:
			sb.WriteByte('i')
		case int64:
			sb.WriteByte('h')
		case string:
			sb.WriteByte('s')
		case bool:
			sb.WriteByte('T') // F не различаем при маршрутизации
		case []byte:
			sb.WriteByte('b')
		default:
			sb.WriteByte('?')
		}
	}
	return sb.String()
}

// Хелперы приведения аргументов. Сообщение уже прошло проверку типов
// при маршрутизации, но числовые типы допускают мягкое расширение.

// F возвращает i-й аргумент как float64
func F(args []interface{}, i int) float64 {
	if i >= len(args) {
		return 0
	}
	switch v := args[i].(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// I возвращает i-й аргумент как int64
func I(args []interface{}, i int) int64 {
	if i >= len(args) {
		return 0
	}
	switch v := args[i].(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// S возвращает i-й аргумент как строку
func S(args []interface{}, i int) string {
	if i >= len(args) {
		return ""
	}
	if s, ok := args[i].(string); ok {
		return s
	}
	return ""
}
