package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"haptic-world/internal/bus"
	"haptic-world/internal/config"
	"haptic-world/internal/control"
	"haptic-world/internal/haptics"
	"haptic-world/internal/osc"
	"haptic-world/internal/physics"
	"haptic-world/internal/sim"
	"haptic-world/internal/telemetry"
	"haptic-world/internal/visual"
	"haptic-world/internal/world"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to TOML config file")
	recordPath := flag.String("record", "", "record poses and collisions to sqlite file")
	flag.Parse()

	cfg := config.DefaultConf
	if *configPath != "" {
		var err error
		cfg, err = config.ParseConfig(*configPath)
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("[Server] config %s not found, using defaults", *configPath)
			cfg, err = config.DefaultConf, nil
		}
		if err != nil {
			log.Printf("[Server] config %s: %v", *configPath, err)
			return 1
		}
	}
	if *recordPath != "" {
		cfg.RecordPath = *recordPath
	}

	tm := telemetry.NewManager()
	var rec *telemetry.Recorder
	if cfg.RecordPath != "" {
		var err error
		rec, err = telemetry.NewRecorder(cfg.RecordPath)
		if err != nil {
			// самописец опционален: ошибка не роняет сервер
			log.Printf("[Server] %v, continuing without recorder", err)
		}
	}

	b := bus.New(tm)
	mgr := world.NewManager()
	out := osc.NewSender(cfg.PeerHost, cfg.PeerPort)
	disp := osc.NewDispatcher(tm)
	master := new(atomic.Bool)

	physDelta := time.Duration(cfg.PhysicsStepMs * float64(time.Millisecond))
	hapDelta := time.Duration(cfg.HapticsStepMs * float64(time.Millisecond))
	visDelta := time.Duration(cfg.VisualStepMs * float64(time.Millisecond))

	physLoop := sim.NewLoop(sim.NamePhysics, physDelta, true, b, tm, cfg.QueueCap)
	hapLoop := sim.NewLoop(sim.NameHaptics, hapDelta, true, b, tm, cfg.QueueCap)
	visLoop := sim.NewLoop(sim.NameVisual, visDelta, true, b, tm, cfg.QueueCap)

	gravity := mgl64.Vec3{cfg.Gravity[0], cfg.Gravity[1], cfg.Gravity[2]}
	phys := physics.New(physLoop, mgr, tm, out, rec, master, gravity)

	// без настоящего драйвера устройство симулируется; конфигурация
	// может потребовать настоящее, тогда отсутствие фатально
	var device haptics.Device
	simDev := haptics.NewSimulatedDevice()
	if cfg.RequireDevice {
		device = haptics.MissingDevice{}
		if err := device.Open(); err != nil {
			log.Printf("[Server] haptic device required: %v", err)
			return 1
		}
	} else {
		device = simDev
	}

	hap := haptics.New(hapLoop, mgr, tm, out, device, master, physDelta, hapDelta, cfg.HapticStiffness)
	vis := visual.New(visLoop, mgr, tm, cfg.VisualBind)

	ctl := control.New(cfg, mgr, b, tm, out, disp, phys, hap, vis, master, simDev)

	// по эндпоинту на симуляцию; занятый порт завершает процесс
	endpoints := make([]*osc.Endpoint, 0, 3)
	for _, ep := range []struct {
		name string
		port int
	}{
		{sim.NamePhysics, cfg.PhysicsPort},
		{sim.NameHaptics, cfg.HapticsPort},
		{sim.NameVisual, cfg.VisualPort},
	} {
		e, err := osc.Listen(ep.name, ep.port, disp)
		if err != nil {
			log.Printf("[Server] %v", err)
			for _, open := range endpoints {
				open.Close()
			}
			return 1
		}
		endpoints = append(endpoints, e)
	}

	physLoop.Start()
	hapLoop.Start()
	visLoop.Start()

	// курсор существует с запуска: haptic инструмент всегда в сцене
	ctl.CreateObject(world.KindCursor, "cursor", mgl64.Vec3{}, 0)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("[Server] shutting down")

	for _, e := range endpoints {
		e.Close()
	}
	hapLoop.Stop()
	visLoop.Stop()
	physLoop.Stop()
	if rec != nil {
		rec.Close()
	}
	return 0
}
