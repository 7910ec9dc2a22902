package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/config"
	"github.com/taskforge/authsync/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRefreshMargin = 30 * time.Second
)

// HTTPProvider talks to a GoTrue-style auth endpoint. It caches the
// current session under a lock and refreshes it in the background ahead
// of expiry, emitting TOKEN_REFRESHED on success.
type HTTPProvider struct {
	baseURL       string
	apiKey        string
	client        *http.Client
	refreshMargin time.Duration

	mu           sync.Mutex
	session      *Session
	refreshTimer *time.Timer

	emitter *emitter
}

// NewHTTPProvider creates an HTTPProvider from configuration.
func NewHTTPProvider(cfg *config.ProviderConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	margin := cfg.RefreshMargin
	if margin == 0 {
		margin = defaultRefreshMargin
	}
	return &HTTPProvider{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		client:        &http.Client{Timeout: timeout},
		refreshMargin: margin,
		emitter:       newEmitter(),
	}
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
}

type userPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Metadata struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
}

func (u *userPayload) toUser() *authstate.User {
	name := u.Metadata.Name
	if name == "" {
		name = u.Metadata.FullName
	}
	return authstate.NewUser(u.ID, u.Email, name)
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
	Code        string `json:"error_code"`
}

func (e *errorResponse) toAuthError() *AuthError {
	msg := e.Description
	if msg == "" {
		msg = e.Msg
	}
	if msg == "" {
		msg = e.Error
	}
	code := e.Code
	if code == "" {
		code = e.Error
	}
	return &AuthError{Code: code, Message: msg}
}

// Initialize validates any cached session with the provider. A session
// the provider no longer recognizes is refreshed once if possible,
// otherwise discarded; a network failure surfaces as an error so the
// synchronizer can report it.
func (p *HTTPProvider) Initialize(ctx context.Context) (*Session, error) {
	sess := p.Session()
	if sess == nil {
		return nil, nil
	}

	user, err := p.VerifyToken(ctx, sess.AccessToken)
	if err == nil {
		p.mu.Lock()
		if p.session != nil {
			p.session.User = user
			sess = p.session
		}
		p.mu.Unlock()
		return sess, nil
	}

	if errors.Is(err, ErrInvalidToken) {
		if sess.RefreshToken != "" {
			if refreshed, rerr := p.refreshSession(ctx, sess.RefreshToken); rerr == nil {
				return refreshed, nil
			}
		}
		p.clearSession()
		return nil, nil
	}

	return nil, err
}

// Session returns the cached session without a network call.
func (p *HTTPProvider) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// AccessToken returns the current bearer token, or "" with no session.
func (p *HTTPProvider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ""
	}
	return p.session.AccessToken
}

// SignIn exchanges credentials for a session via the password grant.
func (p *HTTPProvider) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	body := map[string]string{"email": creds.Email, "password": creds.Password}
	var tr tokenResponse
	if err := p.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &tr); err != nil {
		return nil, err
	}
	if tr.User == nil {
		return nil, &AuthError{Message: "token response carried no user"}
	}

	sess := p.sessionFromTokenResponse(&tr)
	p.setSession(sess)
	p.emitter.emit(Event{Type: EventSignedIn, Session: sess})
	return sess, nil
}

// SignUp registers a new account. When the provider requires email
// confirmation it returns the user without a session.
func (p *HTTPProvider) SignUp(ctx context.Context, creds Credentials) (*SignUpResult, error) {
	body := map[string]any{"email": creds.Email, "password": creds.Password}
	if creds.Name != "" {
		body["data"] = map[string]string{"name": creds.Name}
	}

	// The signup endpoint answers with a full token response when the
	// account is auto-confirmed and with a bare user otherwise.
	var raw json.RawMessage
	if err := p.do(ctx, http.MethodPost, "/signup", "", body, &raw); err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}

	if tr.AccessToken != "" && tr.User != nil {
		sess := p.sessionFromTokenResponse(&tr)
		p.setSession(sess)
		p.emitter.emit(Event{Type: EventSignedIn, Session: sess})
		return &SignUpResult{User: sess.User, Session: sess}, nil
	}

	var up userPayload
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	return &SignUpResult{User: up.toUser()}, nil
}

// SignOut revokes the session with the requested scope. The local cache
// is cleared and SIGNED_OUT emitted even when the revocation call fails;
// the caller decides whether the error matters.
func (p *HTTPProvider) SignOut(ctx context.Context, scope SignOutScope) error {
	token := p.AccessToken()

	var err error
	if token != "" {
		err = p.do(ctx, http.MethodPost, "/logout?scope="+string(scope), token, nil, nil)
	}

	p.clearSession()
	p.emitter.emit(Event{Type: EventSignedOut})
	return err
}

// VerifyToken asks the provider who a raw bearer token belongs to. A 401
// maps to ErrInvalidToken; anything else is a transport failure.
func (p *HTTPProvider) VerifyToken(ctx context.Context, token string) (*authstate.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	var up userPayload
	if err := p.do(ctx, http.MethodGet, "/user", token, nil, &up); err != nil {
		return nil, err
	}
	if up.ID == "" {
		return nil, ErrInvalidToken
	}
	return up.toUser(), nil
}

// Events returns the session event stream.
func (p *HTTPProvider) Events() <-chan Event {
	return p.emitter.events()
}

// Close stops the refresh timer and closes the event stream.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	p.mu.Unlock()
	p.emitter.close()
	return nil
}

func (p *HTTPProvider) sessionFromTokenResponse(tr *tokenResponse) *Session {
	sess := &Session{User: tr.User.toUser()}
	sess.AccessToken = tr.AccessToken
	sess.RefreshToken = tr.RefreshToken
	sess.TokenType = tr.TokenType
	if tr.ExpiresIn > 0 {
		sess.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	} else {
		sess.Expiry = tokenExpiry(tr.AccessToken)
	}
	return sess
}

// tokenExpiry extracts the exp claim without verifying the signature.
// Verification belongs to the provider; the expiry is only used to
// schedule the background refresh.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (p *HTTPProvider) setSession(sess *Session) {
	p.mu.Lock()
	p.session = sess
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	if sess != nil && sess.RefreshToken != "" && !sess.Expiry.IsZero() {
		wait := time.Until(sess.Expiry) - p.refreshMargin
		if wait < 0 {
			wait = 0
		}
		refreshToken := sess.RefreshToken
		p.refreshTimer = time.AfterFunc(wait, func() { p.backgroundRefresh(refreshToken) })
	}
	p.mu.Unlock()
}

func (p *HTTPProvider) clearSession() {
	p.mu.Lock()
	p.session = nil
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	p.mu.Unlock()
}

func (p *HTTPProvider) backgroundRefresh(refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout)
	defer cancel()

	if _, err := p.refreshSession(ctx, refreshToken); err != nil {
		logger.Warn("background token refresh failed", zap.Error(err))
	}
}

func (p *HTTPProvider) refreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var tr tokenResponse
	if err := p.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tr); err != nil {
		return nil, err
	}
	if tr.User == nil {
		return nil, &AuthError{Message: "refresh response carried no user"}
	}

	sess := p.sessionFromTokenResponse(&tr)
	if sess.RefreshToken == "" {
		sess.RefreshToken = refreshToken
	}
	p.setSession(sess)
	p.emitter.emit(Event{Type: EventTokenRefreshed, Session: sess})
	return sess, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", ErrInvalidToken, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var er errorResponse
		if jerr := json.Unmarshal(data, &er); jerr == nil {
			return er.toAuthError()
		}
		return &AuthError{Message: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
	}
	return nil
}
