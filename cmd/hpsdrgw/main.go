package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ewancrowle/hpsdr-gateway/internal/api"
	"github.com/ewancrowle/hpsdr-gateway/internal/auth"
	"github.com/ewancrowle/hpsdr-gateway/internal/config"
	"github.com/ewancrowle/hpsdr-gateway/internal/gateway"
	"github.com/ewancrowle/hpsdr-gateway/internal/persistence"
	"github.com/ewancrowle/hpsdr-gateway/internal/radio"
	"github.com/ewancrowle/hpsdr-gateway/internal/selector"
	"github.com/ewancrowle/hpsdr-gateway/internal/session"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Resolve configured radios
	var specs []radio.Spec
	for _, r := range cfg.Radios {
		specs = append(specs, radio.Spec{
			Name:        r.Name,
			Hostname:    r.Hostname,
			ControlPort: r.Port,
			DataPort:    r.DataPort,
			Enabled:     r.Enabled,
		})
	}
	radios := radio.NewTable(specs)
	if len(radios.Enabled()) == 0 {
		log.Fatalf("Failed to initialize gateway: no enabled radios in configuration")
	}

	// 3. Initialize persistence
	var hook persistence.Hook = persistence.NoopHook{}
	redisHook := persistence.NewRedisHook(persistence.RedisConfig{
		Enabled:  cfg.Redis.Enabled,
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.Channel,
	})
	if redisHook != nil {
		hook = redisHook
	}

	// 4. Initialize the session table
	tbl := session.NewTable(sessionHookAdapter{hook})

	// 5. Initialize the radio-selection strategy
	manager := selector.NewManager()
	manager.Register(selector.FirstAvailableName, selector.FirstAvailable{})
	manager.Register(selector.RoundRobinName, selector.NewRoundRobin())
	manager.Register(selector.LeastLoadedName, selector.NewLeastLoaded(tbl))

	// 6. Open the shared UDP socket and build the forwarder around it
	engine := gateway.NewEngine(gateway.Config{
		ListenAddress: cfg.Proxy.ListenAddress,
		ListenPort:    cfg.Proxy.ListenPort,
		BufferSize:    cfg.Proxy.BufferSize,
	}, radios, tbl)

	if err := engine.Listen(); err != nil {
		log.Fatalf("Failed to start UDP engine: %v", err)
	}

	forwarder := gateway.NewForwarder(
		engine.Conn(), radios, tbl, &engine.Stats,
		auth.AnonymousOnly{}, cfg.Security.RequireAuthentication,
		manager, selector.Name(cfg.Proxy.RadioSelection),
		time.Duration(cfg.Proxy.SessionTimeoutS)*time.Second,
	)

	// 7. Supervise the engine, reaper, flusher, redis subscriber, and
	// API server under one cancellable context and errgroup, so a fatal
	// engine error (permanent I/O failure) triggers full shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return engine.Run(gctx, forwarder)
	})

	reaper := gateway.NewReaper(tbl, hook, 30*time.Second, time.Duration(cfg.Proxy.SessionTimeoutS)*time.Second)
	group.Go(func() error {
		reaper.Run(gctx)
		return nil
	})

	if cfg.Performance.StatsEnabled {
		flusher := gateway.NewStatsFlusher(tbl, hook, time.Duration(cfg.Performance.StatsIntervalS)*time.Second)
		group.Go(func() error {
			flusher.Run(gctx)
			return nil
		})
	}

	if redisHook != nil {
		group.Go(func() error {
			redisHook.Subscribe(gctx)
			return nil
		})
	}

	if cfg.API.Enabled {
		server := api.NewServer(cfg, &engine.Stats, tbl)
		group.Go(func() error {
			log.Printf("API server listening on :%d", cfg.API.Port)
			return server.Start()
		})
		group.Go(func() error {
			<-gctx.Done()
			return server.Shutdown()
		})
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-gctx.Done():
	}

	log.Println("Shutting down gateway...")
	cancel()

	if err := group.Wait(); err != nil {
		log.Printf("gateway exited with error: %v", err)
	}
}

// sessionHookAdapter narrows a persistence.Hook down to the
// session.Hook interface the session table depends on, keeping the
// table's import graph free of the persistence package.
type sessionHookAdapter struct {
	hook persistence.Hook
}

func (a sessionHookAdapter) RecordSessionCreated(s *session.Session) {
	a.hook.RecordSessionCreated(s)
}

func (a sessionHookAdapter) RecordSessionTerminated(id uint64, clientEndpoint, reason string) {
	a.hook.RecordSessionTerminated(id, clientEndpoint, reason)
}
