package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-pond/internal/api"
	"github.com/celerix-dev/celerix-pond/internal/backup"
	"github.com/celerix-dev/celerix-pond/internal/config"
	"github.com/celerix-dev/celerix-pond/internal/server"
	"github.com/celerix-dev/celerix-pond/internal/session"
	"github.com/celerix-dev/celerix-pond/internal/vault"
	"github.com/celerix-dev/celerix-pond/pkg/engine"
	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

func main() {
	fmt.Println("Starting Pond Interaction Log Daemon...")

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Storage: a remote daemon when POND_STORE_ADDR is set, otherwise the embedded engine
	store, err := sdk.New(cfg.StoreOptions())
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	embedded, isEmbedded := store.(*engine.MemStore)
	if isEmbedded {
		personas, _ := embedded.GetPersonas()
		fmt.Printf("Engine started (%s backend). Loaded %d personas.\n", cfg.Storage, len(personas))
	} else {
		fmt.Printf("Using remote store at %s.\n", cfg.StoreAddr)
	}

	// 3. TCP Router, only when this process owns the data
	var router *server.Router
	if isEmbedded {
		router = server.NewRouter(embedded)
		if cfg.UseTLS() {
			fmt.Println("Generating self-signed certificate for internal TLS...")
			cert, err := vault.GenerateSelfSignedCert()
			if err != nil {
				log.Fatalf("Failed to generate TLS certificate: %v", err)
			}
			router.SetCertificate(cert)
			fmt.Println("TLS encryption enabled.")
		} else {
			fmt.Println("TLS encryption disabled (POND_DISABLE_TLS=true).")
		}
	}

	if cfg.MasterKey() != nil {
		fmt.Println("Interaction records are encrypted at rest.")
	}

	// 4. Sessions & HTTP API
	sessions := session.NewRegistry(store, session.Options{
		AppID:    cfg.AppID,
		Debounce: cfg.Debounce,
		VaultKey: cfg.MasterKey(),
	})
	h := &api.Handler{Store: store, Sessions: sessions}
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	h.Register(r.Group("/api"))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}
	go func() {
		fmt.Printf("HTTP API listening on :%s\n", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 5. Scheduled backups
	var backups *backup.Scheduler
	if cfg.BackupSchedule != "" {
		backups = backup.New(store, backup.Options{
			Dir:     cfg.BackupDir,
			Backend: cfg.Storage,
			Keep:    cfg.BackupKeep,
		})
		if err := backups.Start(cfg.BackupSchedule); err != nil {
			log.Fatalf("Failed to start backups: %v", err)
		}
	}

	// 6. Start the TCP Server
	if router != nil {
		go func() {
			fmt.Printf("Pond Engine listening on :%s (TCP)\n", cfg.Port)
			if err := router.Listen(cfg.Port); err != nil {
				log.Fatalf("TCP Server failed: %v", err)
			}
		}()
	}

	// 7. Graceful Shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nShutdown signal received. Finalizing disk writes...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if router != nil {
		if err := router.Stop(); err != nil {
			log.Printf("Warning: TCP router did not stop cleanly: %v", err)
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Warning: HTTP server did not stop cleanly: %v", err)
	}
	if backups != nil {
		backups.Stop(ctx)
	}
	if err := sdk.Close(store); err != nil {
		log.Printf("Warning: could not close store: %v", err)
	}
	fmt.Println("Persistence complete. Exiting.")
}
