package provider

import (
	"fmt"

	"github.com/taskforge/authsync/internal/config"
	"go.uber.org/fx"
)

// New builds the Provider selected by the configuration.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.Provider.Mode {
	case config.ProviderModeHTTP:
		return NewHTTPProvider(&cfg.Provider), nil
	case config.ProviderModeStatic:
		return NewStaticProviderFromConfig(&cfg.Provider)
	default:
		return nil, fmt.Errorf("unsupported provider mode: %s", cfg.Provider.Mode)
	}
}

// Module provides the auth provider dependencies
var Module = fx.Module("provider",
	fx.Provide(New),
)
