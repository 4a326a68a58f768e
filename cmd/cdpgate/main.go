package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/uibridge/cdpgate/internal/infrastructure/config"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/infrastructure/server"
	"github.com/uibridge/cdpgate/internal/pages"
	"github.com/uibridge/cdpgate/internal/uihost"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML or TOML config file")
	pagesPath := flag.String("pages", "", "Path to a page manifest opened at startup")
	port := flag.String("port", "", "Listen port (overrides config)")
	host := flag.String("host", "", "Listen host (overrides config)")
	demo := flag.Bool("demo", true, "Open demo pages when no manifest is given")
	flag.Parse()

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting CDPGate",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("flush_interval", cfg.Bridge.FlushInterval),
	)

	metrics := monitoring.NewMetrics()
	ui := uihost.New(cfg.Bridge.CommandBuffer, logger.Named("uihost"), metrics)
	srv := server.New(cfg, ui, logger, metrics)
	ui.AttachBridge(srv.Bridge())

	// Bind failure is the only fatal startup error.
	if err := srv.Listen(); err != nil {
		logger.Fatal("Failed to bind listener", zap.Error(err))
	}

	switch {
	case *pagesPath != "":
		manifest, err := pages.Load(*pagesPath)
		if err != nil {
			logger.Fatal("Failed to load page manifest", zap.Error(err))
		}
		openManifestPages(ui, manifest, logger)
	case *demo:
		openDemoPages(ui, logger)
	}

	logger.Info("DevTools discovery available",
		zap.String("url", "http://"+srv.Advertise()+"/json/list"),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	if err := srv.Close(); err != nil {
		logger.Warn("Error during shutdown", zap.Error(err))
	}
	ui.Close()
}

// openManifestPages opens every page a manifest defines. A page whose
// script fails to run is skipped; the rest still open.
func openManifestPages(ui *uihost.Host, manifest *pages.Manifest, logger *logging.Logger) {
	for _, d := range manifest.Pages {
		if _, err := ui.OpenPage(d.Title, d.URL, d.Script); err != nil {
			logger.Warn("Failed to open manifest page",
				zap.String("title", d.Title),
				zap.Error(err),
			)
		}
	}
}

// openDemoPages registers a pair of inspectable pages so a freshly started
// gate has something to show in chrome://inspect.
func openDemoPages(ui *uihost.Host, logger *logging.Logger) {
	garage := `
		console.log("garage view booted");
		var vehicles = ["MT-7", "LT-2", "HT-9"];
		function selected() { return vehicles[0]; }
		function announce() { emit({method: "Garage.ready", params: {count: vehicles.length}}); }
	`
	battle := `
		console.log("battle view booted");
		var tick = 0;
		function update() { tick++; return tick; }
	`

	for _, p := range []struct {
		title, url, script string
	}{
		{"Garage", "app://garage", garage},
		{"Battle", "app://battle", battle},
	} {
		if _, err := ui.OpenPage(p.title, p.url, p.script); err != nil {
			logger.Warn("Failed to open demo page",
				zap.String("title", p.title),
				zap.Error(err),
			)
		}
	}
}
