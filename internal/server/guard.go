package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/taskforge/authsync/internal/logger"
	"github.com/taskforge/authsync/internal/rpc"
	"github.com/taskforge/authsync/internal/utils"
	"go.uber.org/zap"
)

// Procedure handles one RPC operation. The RequestContext is available
// through FromContext; the returned value is encoded as JSON.
type Procedure func(r *http.Request, params json.RawMessage) (any, error)

// Public mounts a procedure that runs regardless of identity.
func Public(name string, proc Procedure) http.Handler {
	return procedureHandler(name, proc)
}

// Protected mounts a procedure behind the guard: a nil RequestContext
// user fails the call with UNAUTHORIZED before the procedure runs. This
// is the sole security boundary; client-side state is advisory only.
func Protected(name string, proc Procedure) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := FromContext(r.Context())
		if rc == nil || rc.User == nil {
			logger.Debug("unauthorized call to protected procedure",
				zap.String("procedure", name),
			)
			utils.WriteError(w, rpc.CodeUnauthorized, "authentication required", http.StatusUnauthorized)
			return
		}
		procedureHandler(name, proc).ServeHTTP(w, r)
	})
}

func procedureHandler(name string, proc Procedure) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			utils.WriteError(w, rpc.CodeBadRequest, "procedures are invoked with POST", http.StatusMethodNotAllowed)
			return
		}

		var params json.RawMessage
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
				utils.WriteError(w, rpc.CodeBadRequest, "malformed JSON body", http.StatusBadRequest)
				return
			}
		}

		result, err := proc(r, params)
		if err != nil {
			logger.Error("procedure failed",
				zap.String("procedure", name),
				zap.Error(err),
			)
			utils.WriteError(w, rpc.CodeInternal, err.Error(), http.StatusInternalServerError)
			return
		}
		utils.WriteJSON(w, result)
	})
}
