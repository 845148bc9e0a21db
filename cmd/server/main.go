package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/clementraoulastek/tcp-server/pkg/backend"
	"github.com/clementraoulastek/tcp-server/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	// Configure logger with microsecond precision
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	// Command line flags
	configPath := flag.String("config", "~/.tcp-relay/config.toml", "Path to config file")
	host := flag.String("host", "", "Host to listen on (overrides config)")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	apiURL := flag.String("api", "", "Base URL of the persistence API (overrides config)")
	metricsAddr := flag.String("metrics", "", "Address to serve /metrics and /healthz on (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Handle --version flag
	if *version {
		fmt.Printf("Relay Server %s\n", Version)
		os.Exit(0)
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	resolvedConfigPath, err := server.ExpandPath(*configPath)
	if err != nil {
		log.Fatalf("Failed to resolve config path: %v", err)
	}
	if absPath, err := filepath.Abs(resolvedConfigPath); err == nil {
		resolvedConfigPath = absPath
	}

	// Command-line flags override config file
	if *host != "" {
		config.Server.Host = *host
	}
	if *port != 0 {
		config.Server.TCPPort = *port
	}
	if *metricsAddr != "" {
		config.Server.MetricsAddr = *metricsAddr
	}

	baseURL := config.APIBaseURL()
	if *apiURL != "" {
		baseURL = strings.TrimRight(*apiURL, "/")
	}

	// The store the relay mirrors messages into
	store := backend.New(baseURL)
	store.SetTimeout(config.APITimeout())

	serverConfig := config.ToServerConfig()

	srv := server.NewServer(serverConfig, store)
	srv.SetMetrics(server.NewMetrics())

	// Enable debug logging if requested
	if *debug {
		srv.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	log.Printf("Config: %s (resolved to %s, using defaults if not found)", *configPath, resolvedConfigPath)
	log.Printf("Persistence API: %s", store.BaseURL())

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("Relay server %s started successfully", Version)
	log.Printf("Server is running on hostname: %s, port: %d", serverConfig.Host, serverConfig.TCPPort)
	if serverConfig.MetricsAddr != "" {
		log.Printf("Metrics: http://%s/metrics", serverConfig.MetricsAddr)
		log.Printf("Health:  http://%s/healthz", serverConfig.MetricsAddr)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}
