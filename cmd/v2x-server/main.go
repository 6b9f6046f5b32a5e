// Command v2x-server serves recorded runs, sweep control and the admin
// debug pages over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/v2x.sim/internal/api"
	"github.com/banshee-data/v2x.sim/internal/db"
	"github.com/banshee-data/v2x.sim/internal/sweep"
	"github.com/banshee-data/v2x.sim/internal/version"
)

var (
	listen  = flag.String("listen", ":8080", "HTTP listen address")
	dbFile  = flag.String("db", "sim.db", "Path to the SQLite database")
	showVer = flag.Bool("version", false, "Print version and exit")
)

// newHandler builds the full route table over database.
func newHandler(database *db.DB) http.Handler {
	runner := sweep.NewRunner(database)
	mux := api.NewServer(database, runner).ServeMux()
	database.AttachAdminRoutes(mux)
	return api.LoggingMiddleware(mux)
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String("v2x-server"))
		return
	}

	database, err := db.OpenDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: newHandler(database),
	}

	go func() {
		log.Printf("listening on %s (db %s)", *listen, *dbFile)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
