package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskforge/authsync/internal/config"
	"github.com/taskforge/authsync/internal/logger"
	"github.com/taskforge/authsync/internal/provider"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client issues RPC calls as JSON POSTs to /rpc/<procedure>. Every call
// passes through the auth interceptor on the way out and the error
// interceptor on the way back.
type Client struct {
	baseURL string
	client  *http.Client
	auth    *AuthInterceptor
	errs    *ErrorInterceptor
}

// ClientParams holds the dependencies for creating a Client
type ClientParams struct {
	fx.In

	Config *config.Config
	Auth   *AuthInterceptor
	Errs   *ErrorInterceptor
}

// NewClient creates a Client from configuration.
func NewClient(params ClientParams) *Client {
	timeout := params.Config.Client.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: params.Config.Client.BaseURL,
		client:  &http.Client{Timeout: timeout},
		auth:    params.Auth,
		errs:    params.Errs,
	}
}

// Call invokes a procedure. A non-nil out receives the decoded result.
// Failed calls return *Error carrying the server's machine-readable
// code; transport failures return a wrapped error.
func (c *Client) Call(ctx context.Context, procedure string, params, out any) error {
	return c.errs.Observe(c.call(ctx, procedure, params, out))
}

func (c *Client) call(ctx context.Context, procedure string, params, out any) error {
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params for %s: %w", procedure, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+procedure, body)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", procedure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.auth.ApplyAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s failed: %w", procedure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response for %s: %w", procedure, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		rpcErr := &Error{}
		if jerr := json.Unmarshal(data, rpcErr); jerr != nil || rpcErr.Code == "" {
			rpcErr = &Error{
				Code:    CodeInternal,
				Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			}
		}
		logger.Debug("rpc call failed",
			zap.String("procedure", procedure),
			zap.String("code", rpcErr.Code),
		)
		return rpcErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response for %s: %w", procedure, err)
		}
	}
	return nil
}

// Module provides the RPC client dependencies. The application supplies
// a provider.Provider and a ResetFunc.
var Module = fx.Module("rpc",
	fx.Provide(
		func(p provider.Provider) TokenSource { return p },
		NewAuthInterceptor,
		NewErrorInterceptor,
		NewClient,
	),
)
