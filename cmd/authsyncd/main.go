package main

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"
	"github.com/taskforge/authsync/internal/config"
	"github.com/taskforge/authsync/internal/logger"
	"github.com/taskforge/authsync/internal/provider"
	"github.com/taskforge/authsync/internal/server"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	config.InitFlags()
	versionFlag := pflag.BoolP("version", "v", false, "Show version information")
	pflag.Parse()

	if *versionFlag {
		pterm.Info.Println(config.GetVersionInfo())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(&cfg.Logging); err != nil {
		pterm.Error.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	app := fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.GetLogger()}
		}),
		provider.Module,
		server.Module,
		fx.Invoke(registerServer),
	)

	app.Run()
}

// registerServer ties the RPC server to the fx lifecycle: started on a
// background context at OnStart, drained at OnStop.
func registerServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *server.Server, p provider.Provider) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(runCtx); err != nil {
					logger.Error("server stopped", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return p.Close()
		},
	})
}
