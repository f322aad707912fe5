package visual

import (
	"log"
	"net/http"

	"haptic-world/internal/bus"
	"haptic-world/internal/osc"
	"haptic-world/internal/sim"
	"haptic-world/internal/telemetry"
	"haptic-world/internal/world"
)

// Sim - визуальная симуляция: зеркало сцены, обновляемое с частотой
// дисплея и транслируемое клиентам по WebSocket. Для ядра это сток:
// отрисовка происходит на стороне клиента.
type Sim struct {
	Loop *sim.Loop

	mgr *world.Manager
	tm  *telemetry.Manager
	hub *Hub

	bind   string
	server *http.Server

	mirror map[string]*world.Object
	dirty  map[string]bool
}

func New(loop *sim.Loop, mgr *world.Manager, tm *telemetry.Manager, bind string) *Sim {
	s := &Sim{
		Loop:   loop,
		mgr:    mgr,
		tm:     tm,
		hub:    NewHub(),
		bind:   bind,
		mirror: make(map[string]*world.Object),
		dirty:  make(map[string]bool),
	}
	s.hub.OnConnect = s.onConnect
	loop.SetStepper(s)
	loop.SetApply(s.apply)
	return s
}

// Init поднимает HTTP сервер зеркала
func (s *Sim) Init() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.HandleWS)
	s.server = &http.Server{Addr: s.bind, Handler: mux}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Visual] http: %v", err)
		}
	}()
	log.Printf("[Visual] mirror on ws://%s/ws", s.bind)
	return nil
}

func (s *Sim) Cleanup() {
	if s.server != nil {
		s.server.Close()
	}
	s.mirror = make(map[string]*world.Object)
}

func (s *Sim) apply(m bus.Message) {
	switch m.Path {
	case "/object/create":
		o := m.Args[0].(*world.Object)
		s.mirror[o.Name] = o
		s.hub.Broadcast(s.createMessage(o))
	case "/object/destroy":
		for _, o := range m.Args[0].([]*world.Object) {
			delete(s.mirror, o.Name)
			delete(s.dirty, o.Name)
			s.hub.Broadcast(NewDestroyMessage(o.Name))
		}
	case "/clear":
		for name := range s.mirror {
			s.hub.Broadcast(NewDestroyMessage(name))
			delete(s.mirror, name)
			delete(s.dirty, name)
		}
	case "/touch":
		s.dirty[osc.S(m.Args, 0)] = true
	case "/constraint/create", "/constraint/destroy":
		// соединения не отображаются
	default:
		s.tm.UnknownPath.Add(1)
	}
}

// Step рассылает накопленные изменения поз с частотой дисплея
func (s *Sim) Step(dt float64) {
	if len(s.dirty) > 0 && s.hub.ClientCount() > 0 {
		for name := range s.dirty {
			o, ok := s.mirror[name]
			if !ok {
				continue
			}
			s.hub.Broadcast(s.updateMessage(o))
		}
	}
	for name := range s.dirty {
		delete(s.dirty, name)
	}
	s.tm.MaybePrint()
}

// onConnect шлет новому клиенту create всей сцены. Вызывается на
// HTTP потоке, поэтому снимок откладывается в цикл симуляции.
func (s *Sim) onConnect(w *SafeWriter) {
	s.Loop.Post(func() {
		for _, o := range s.mirror {
			if err := w.WriteJSON(s.createMessage(o)); err != nil {
				return
			}
		}
	})
}

func (s *Sim) createMessage(o *world.Object) *CreateMessage {
	pos := o.Position.Get()
	col := o.Color.Get()
	msg := &CreateMessage{
		Type:       MessageTypeCreate,
		ID:         o.Name,
		ObjectType: o.Kind.String(),
		X:          pos.X(),
		Y:          pos.Y(),
		Z:          pos.Z(),
		Color:      [3]float64{col.X(), col.Y(), col.Z()},
		Texture:    o.TextureImage.Get(),
		Visible:    o.Visible.Get(),
		ServerTime: GetCurrentServerTime(),
	}
	switch o.Kind {
	case world.KindSphere:
		msg.Radius = o.Radius.Get()
	case world.KindPrism, world.KindMesh:
		sz := o.Size.Get()
		msg.SizeX, msg.SizeY, msg.SizeZ = sz.X(), sz.Y(), sz.Z()
	}
	return msg
}

func (s *Sim) updateMessage(o *world.Object) *UpdateMessage {
	pos := o.Position.Get()
	rot := o.Rotation.Get()
	col := o.Color.Get()
	var r [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = rot.At(i, j)
		}
	}
	return &UpdateMessage{
		Type:       MessageTypeUpdate,
		ID:         o.Name,
		X:          pos.X(),
		Y:          pos.Y(),
		Z:          pos.Z(),
		Rotation:   r,
		Color:      [3]float64{col.X(), col.Y(), col.Z()},
		Visible:    o.Visible.Get(),
		ServerTime: GetCurrentServerTime(),
	}
}
