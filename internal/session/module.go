package session

import (
	"github.com/taskforge/authsync/internal/authstate"
	"go.uber.org/fx"
)

// Module provides the client-side session dependencies
var Module = fx.Module("session",
	fx.Provide(
		authstate.NewStore,
		NewGuard,
		NewSynchronizer,
		NewManager,
	),
)
