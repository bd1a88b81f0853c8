package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/socialink/realtime/internal/event"
	"github.com/socialink/realtime/internal/presence"
	"github.com/socialink/realtime/internal/ratelimit"
	"github.com/socialink/realtime/internal/registry"
	"github.com/socialink/realtime/internal/router"
	"github.com/socialink/realtime/internal/transport"
	"github.com/socialink/realtime/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	mode, err := transport.ParseMode(os.Getenv("DELIVERY_MODE"))
	if err != nil {
		log.Fatalf("invalid delivery mode: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "delivery-1"
	}

	presenceStore, err := presence.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	limiter := ratelimit.NewLimiter(presenceStore.Client())

	groups := registry.New()

	log.Printf("realtime delivery server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  server_name:     %s", serverName)
	log.Printf("  delivery_mode:   %s", mode)

	// Declare server early so closures can capture it.
	var server *ws.Server

	dispatcher := ws.NewEventDispatcher(nil)
	server = ws.NewServer(config, groups, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	server.SetPresence(presenceStore)
	server.SetLimiter(limiter)

	// Select the active transport once. Socket mode delivers through this
	// server's own group table; relay mode publishes to the hosted relay and
	// this server only handles socket clients that have not been migrated.
	var active transport.Transport
	switch mode {
	case transport.ModeRelay:
		relayConfig := transport.DefaultRelayConfig()
		if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
			relayConfig.URL = natsURL
		}
		relayConfig.Name = serverName
		active, err = transport.NewRelay(relayConfig)
		if err != nil {
			log.Fatalf("failed to connect to relay: %v", err)
		}
		log.Printf("  relay_url:       %s", relayConfig.URL)
	default:
		active = transport.NewSocket(groups, server)
	}

	eventRouter := router.New(active)

	// Producer ingress: application handlers running inside a web process
	// emit events over their own socket connection; each carries the target
	// recipient in its payload. The router forwards through the active
	// transport, so these work identically in both modes.
	for _, kind := range event.Kinds() {
		kind := kind
		dispatcher.Register(kind, func(conn *ws.Connection, data json.RawMessage) {
			target, err := event.TargetRecipient(kind, data)
			if err != nil {
				log.Printf("ingress: dropping %s from conn=%s: %v", kind, conn.ID, err)
				return
			}
			if err := eventRouter.Notify(context.Background(), kind, target, data); err != nil {
				log.Printf("ingress: notify %s for %s failed: %v", kind, target, err)
			}
		})
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := active.Close(); err != nil {
			log.Printf("transport close error: %v", err)
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := presenceStore.Close(); err != nil {
			log.Printf("presence store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
