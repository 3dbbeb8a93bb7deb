package main

import (
	"flag"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/foomo/yuque-mcp/mcp"
	"github.com/foomo/yuque-mcp/service"
)

func main() {
	// Define command line flags
	stdioMode := flag.Bool("stdio", true, "Run in stdio mode")
	httpAddr := flag.String("http", "", "HTTP server address (e.g., ':8080')")
	configPath := flag.String("config", "", "Path to an optional YAML settings file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	settings, err := service.LoadSettings(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// never log the token
	logger.Info("starting yuque-mcp",
		zap.String("version", mcp.Version),
		zap.String("space", settings.Space),
		zap.String("group", settings.GroupLogin),
		zap.String("book", settings.BookSlug),
	)

	serviceInstance := service.NewService(nil, os.Getenv("YUQUE_API_BASE"), logger)

	// Create MCP server using the extracted package
	s := mcp.NewServer(logger, settings, serviceInstance)

	if *httpAddr != "" {
		// Start the HTTP server
		log.Printf("Starting MCP server on HTTP address: %s", *httpAddr)
		httpServer := mcp.NewMcpHTTPServer(s, "/mcp")
		if err := httpServer.Start(*httpAddr); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}
	// Start the stdio server
	if *stdioMode {
		log.Println("Starting MCP server in stdio mode...")
	} else {
		log.Println("Starting MCP server in stdio mode (default)...")
	}
	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}

// newLogger builds a stderr logger; stdout stays reserved for the stdio
// transport.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
