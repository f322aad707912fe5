package osc

import (
	"fmt"
	"log"
	"net"
	"sync"

	goosc "github.com/hypebeast/go-osc/osc"
)

// Endpoint - один слушающий UDP/OSC порт. У каждой симуляции свой
// эндпоинт, все три обычно делят один диспетчер.
type Endpoint struct {
	name string
	conn net.PacketConn
	srv  *goosc.Server
	wg   sync.WaitGroup
}

// Listen привязывает UDP порт и запускает сетевой поток приема.
// Ошибка привязки возвращается вызывающему: занятый порт - причина
// завершить процесс с ненулевым кодом.
func Listen(name string, port int, disp *Dispatcher) (*Endpoint, error) {
	addr := fmt.Sprintf(":%d", port)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("osc %s: bind %s: %w", name, addr, err)
	}
	e := &Endpoint{
		name: name,
		conn: conn,
		srv:  &goosc.Server{Addr: addr, Dispatcher: disp},
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.srv.Serve(conn); err != nil {
			// закрытие сокета при останове тоже приводит сюда
			log.Printf("[OSC] %s serve done: %v", e.name, err)
		}
	}()
	log.Printf("[OSC] %s listening on udp%s", name, addr)
	return e, nil
}

// Close останавливает сетевой поток эндпоинта
func (e *Endpoint) Close() {
	e.conn.Close()
	e.wg.Wait()
}

// Sender шлет исходящие события настроенному пиру
type Sender struct {
	mu sync.Mutex
	c  *goosc.Client
}

func NewSender(host string, port int) *Sender {
	return &Sender{c: goosc.NewClient(host, port)}
}

// Emit кодирует и отправляет сообщение; ошибки сети только логируются,
// исходящий поток событий негарантированный.
func (s *Sender) Emit(path string, args ...interface{}) {
	msg := goosc.NewMessage(path)
	for _, a := range args {
		msg.Append(a)
	}
	s.mu.Lock()
	err := s.c.Send(msg)
	s.mu.Unlock()
	if err != nil {
		log.Printf("[OSC] emit %s: %v", path, err)
	}
}
