package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notesync-engine/internal/collab"
	"notesync-engine/internal/config"
	"notesync-engine/internal/engine"
	"notesync-engine/internal/handler"
	"notesync-engine/internal/integrity"
	"notesync-engine/internal/middleware"
	"notesync-engine/internal/netmon"
	"notesync-engine/internal/notestore"
	"notesync-engine/internal/store"
	"notesync-engine/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := store.Open(cfg.Queue.Path)
	if err != nil {
		log.Fatalf("Failed to open operation queue: %v", err)
	}
	defer db.Close()

	ops := store.NewOperationStore(db)
	syncStates := store.NewSyncStateStore(db)
	conflicts := store.NewConflictStore(db)
	integrityRecords := store.NewIntegrityStore(db)

	notes := openNoteStore(cfg)

	sensor := netmon.NewDialSensor(cfg.Network.ProbeHost, cfg.Network.PollInterval, 5*time.Second)
	prober := netmon.NewProber(cfg.Network.ProbeURL, cfg.Network.ProbeHost, 5*time.Second, 30*time.Second, cfg.Network.ProbeInterval)
	monitor := netmon.NewMonitor(sensor, prober)

	var collaborators engine.Collaborators
	if cfg.Collaborator.BaseURL != "" {
		collaborators = collab.NewClient(cfg.Collaborator.BaseURL, cfg.Auth.TokenSecret, cfg.Collaborator.TokenTTL)
	} else {
		collaborators = collab.NewLocal()
	}

	manager := engine.NewManager(
		engine.Config{
			ProcessInterval:         cfg.Engine.ProcessInterval,
			StatsInterval:           cfg.Engine.StatsInterval,
			CleanupInterval:         cfg.Engine.CleanupInterval,
			CleanupAge:              cfg.Engine.CleanupAge,
			ConflictRetention:       cfg.Engine.ConflictRetention,
			BatchSize:               cfg.Engine.BatchSize,
			ChunkSize:               cfg.Engine.ChunkSize,
			MaxRetries:              cfg.Engine.MaxRetries,
			BackoffBase:             cfg.Engine.BackoffBase,
			BackoffMax:              cfg.Engine.BackoffMax,
			DependencyRetryDelay:    cfg.Engine.DependencyRetryDelay,
			RetryScanAge:            cfg.Engine.RetryScanAge,
			RetryBatchSize:          cfg.Engine.RetryBatchSize,
			DependencyFailurePolicy: cfg.Engine.DependencyFailurePolicy,
		},
		ops, syncStates, conflicts, notes, monitor, collaborators,
	)

	checker := integrity.NewChecker(notes, integrityRecords)

	hub := websocket.NewHub(
		cfg.WebSocket.MaxObservers,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitor.Run(ctx)
	go manager.Run(ctx)
	go bridgeEvents(ctx, manager, monitor, checker, hub, cfg.Integrity.MonitorInterval, cfg.Integrity.AutoCorrect)

	operationHandler := handler.NewOperationHandler(manager)
	syncHandler := handler.NewSyncHandler(manager, monitor)
	integrityHandler := handler.NewIntegrityHandler(checker, notes)
	wsHandler := handler.NewWebSocketHandler(hub, cfg.Auth.TokenSecret,
		cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.Auth.TokenSecret))

	api.HandleFunc("/operations", operationHandler.Enqueue).Methods("POST", "OPTIONS")
	api.HandleFunc("/operations/{id}", operationHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/operations/{id}/status", operationHandler.GetStatus).Methods("GET", "OPTIONS")
	api.HandleFunc("/operations/{id}", operationHandler.Cancel).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/sync/stats", syncHandler.GetStats).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/force", syncHandler.ForceSync).Methods("POST", "OPTIONS")
	api.HandleFunc("/sync/network", syncHandler.GetNetworkState).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/conflicts", syncHandler.ListConflicts).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/conflicts/{id}/resolve", syncHandler.ResolveConflict).Methods("POST", "OPTIONS")

	api.HandleFunc("/integrity/scan", integrityHandler.RunScan).Methods("POST", "OPTIONS")
	api.HandleFunc("/integrity/notes/{id}", integrityHandler.ValidateNote).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", healthHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting notesync engine on %s (env: %s)", addr, cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

// openNoteStore connects to CouchDB when configured, creating the database
// on first run, and falls back to the in-memory store otherwise.
func openNoteStore(cfg *config.Config) notestore.NoteStore {
	if cfg.CouchDB.Host == "" {
		log.Println("No CouchDB configured, using in-memory note store")
		return notestore.NewMemoryStore()
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.CouchDB.User,
		cfg.CouchDB.Password,
		cfg.CouchDB.Host,
		cfg.CouchDB.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		log.Fatalf("Failed to connect to CouchDB: %v", err)
	}

	exists, err := client.DBExists(context.Background(), cfg.CouchDB.Name)
	if err != nil {
		log.Fatalf("Failed to check database existence: %v", err)
	}
	if !exists {
		if err := client.CreateDB(context.Background(), cfg.CouchDB.Name); err != nil {
			log.Fatalf("Failed to create database: %v", err)
		}
		log.Printf("Created database: %s", cfg.CouchDB.Name)
	}

	log.Printf("Connected to CouchDB at %s:%s", cfg.CouchDB.Host, cfg.CouchDB.Port)
	return notestore.NewCouchStore(client, cfg.CouchDB.Name)
}

// bridgeEvents forwards engine events, network changes, and integrity health
// onto the websocket hub. When autoCorrect is set, a CRITICAL health reading
// triggers a corrective scan.
func bridgeEvents(
	ctx context.Context,
	manager *engine.Manager,
	monitor *netmon.Monitor,
	checker *integrity.Checker,
	hub *websocket.Hub,
	healthInterval time.Duration,
	autoCorrect bool,
) {
	events := manager.Subscribe()
	netChanges := monitor.Subscribe()
	health := checker.Monitor(ctx, healthInterval)

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-events:
			msgType := websocket.TypeOperationUpdate
			switch ev.Type {
			case engine.EventConflict:
				msgType = websocket.TypeConflict
			case engine.EventStats:
				msgType = websocket.TypeStats
			}
			broadcast(hub, msgType, ev)

		case state := <-netChanges:
			broadcast(hub, websocket.TypeNetworkState, state)

		case h, ok := <-health:
			if !ok {
				return
			}
			broadcast(hub, websocket.TypeHealth, map[string]interface{}{"health": h})

			if h == integrity.HealthCritical && autoCorrect {
				report, err := checker.ScanAll(ctx, true)
				if err != nil {
					log.Printf("Corrective integrity scan failed: %v", err)
				} else {
					log.Printf("Corrective integrity scan: %d scanned, %d corrected", report.Scanned, report.Corrected)
				}
			}
		}
	}
}

func broadcast(hub *websocket.Hub, msgType websocket.MessageType, payload interface{}) {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		log.Printf("Failed to build %s message: %v", msgType, err)
		return
	}
	if err := hub.Broadcast(msg); err != nil {
		log.Printf("Failed to broadcast %s message: %v", msgType, err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "notesync-engine",
	})
}
