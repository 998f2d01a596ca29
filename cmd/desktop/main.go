// Package main runs the localhost bridge for the Keepsake desktop shell:
// it owns the local store and sync machinery and pushes change and sync
// events to the UI over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/keepsakehq/keepsake-client/internal/db"
	"github.com/keepsakehq/keepsake-client/internal/live"
	"github.com/keepsakehq/keepsake-client/internal/logging"
	"github.com/keepsakehq/keepsake-client/internal/session"
	syncpkg "github.com/keepsakehq/keepsake-client/internal/sync"
	"github.com/keepsakehq/keepsake-client/internal/sync/netmon"
	"github.com/keepsakehq/keepsake-client/internal/sync/scheduler"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logging.Init(os.Stdout, logrus.InfoLevel)

	dataDir := envOr("KEEPSAKE_DATA_DIR", "./data")
	apiURL := envOr("KEEPSAKE_API_URL", "http://localhost:8080/api")
	port := envOr("KEEPSAKE_BRIDGE_PORT", "8787")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logging.Error("failed to create data directory", err,
			map[string]interface{}{"dir": dataDir})
		os.Exit(1)
	}

	database, err := db.Open(dataDir)
	if err != nil {
		logging.Error("failed to open local store", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		logging.Error("migration failed", err)
		os.Exit(1)
	}

	store := db.NewRepository(database.DB)
	defer store.Close()

	sessions, err := session.NewManager(store)
	if err != nil {
		logging.Error("failed to load session", err)
		os.Exit(1)
	}

	bus := live.NewBus()
	hub := NewHub()
	bus.Subscribe(func(c live.Change) {
		hub.Broadcast(EventRecordChanged, map[string]interface{}{
			"table": c.Table,
			"op":    string(c.Op),
			"id":    c.ID,
		})
	})

	client := syncpkg.NewHTTPClient(&syncpkg.ClientConfig{
		BaseURL: apiURL,
		Timeout: 15 * time.Second,
	}, sessions)
	engine := syncpkg.NewEngine(store, client, bus, nil)
	engine.SetListener(func(event string, fields map[string]interface{}) {
		hub.Broadcast(event, fields)
	})

	monitorCfg := netmon.DefaultConfig()
	monitorCfg.ProbeURL = apiURL + "/health"
	monitor := netmon.New(monitorCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor.StartProbe(ctx)
	defer monitor.Stop()

	sched := scheduler.New(engine, monitor, nil)
	sched.Start(ctx)
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"keepsake-desktop"}`))
	})
	mux.HandleFunc("/api/sync/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sched.TriggerSync()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/api/sync/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status := engine.Status()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"draining":   status.Draining,
			"pending":    status.Pending,
			"last_sync":  status.LastSync,
			"last_error": status.LastError,
			"online":     monitor.Online(),
		})
	})
	mux.HandleFunc("/ws", hub.handleWS)

	server := &http.Server{
		Addr:    "127.0.0.1:" + port,
		Handler: mux,
	}

	go func() {
		logging.Info("bridge listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("bridge server failed", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("shutdown failed", err)
	}
	logging.Info("bridge stopped")
}
