// Development analytics backend. Serves the same HTTP surface the agent
// consumes, backed by an in-process DuckDB store, so the agent can be run
// end to end without the real service.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dataset-attach/agent/internal/devbackend"
)

var Version = "dev"

func main() {
	port := flag.Int("port", 8000, "listen port")
	dataDir := flag.String("data", "", "directory for the DuckDB database (default: temp)")
	sessionTTL := flag.Duration("session-ttl", 30*time.Minute, "drop sessions idle longer than this")
	flag.Parse()

	dir := *dataDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "dataset-devbackend")
	}

	store, err := devbackend.NewTableStore(dir)
	if err != nil {
		fmt.Printf("Failed to open table store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := devbackend.NewServer(store, Version)

	stop := make(chan struct{})
	defer close(stop)
	go srv.CleanupLoop(time.Minute, *sessionTTL, stop)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	srv.RegisterRoutes(e)

	fmt.Printf("[DevBackend] Listening on :%d (data: %s)\n", *port, dir)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", *port)))
}
