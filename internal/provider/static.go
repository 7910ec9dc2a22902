package provider

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/config"
	"gopkg.in/yaml.v3"
)

// StaticUser is an account entry in the static provider's fixture file.
type StaticUser struct {
	ID        string `yaml:"id"`
	Email     string `yaml:"email"`
	Name      string `yaml:"name"`
	Password  string `yaml:"password"`
	Confirmed bool   `yaml:"confirmed"`
}

type staticFixture struct {
	Users []StaticUser `yaml:"users"`
}

// LoadStaticUsers reads the fixture file for the static provider.
func LoadStaticUsers(path string) ([]StaticUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var fixture staticFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	for i := range fixture.Users {
		if fixture.Users[i].ID == "" {
			fixture.Users[i].ID = uuid.NewString()
		}
	}
	return fixture.Users, nil
}

type issuedToken struct {
	userID    string
	expiresAt time.Time
}

// StaticProvider is an in-process Provider backed by a fixed user list.
// It issues opaque random tokens with a TTL and keeps them in memory,
// which makes it a drop-in for development and tests where standing up a
// real auth endpoint is overkill.
type StaticProvider struct {
	ttl time.Duration

	mu      sync.Mutex
	users   map[string]StaticUser // keyed by email
	tokens  map[string]issuedToken
	session *Session

	emitter *emitter
}

// NewStaticProvider creates a StaticProvider over the given accounts.
func NewStaticProvider(users []StaticUser, ttl time.Duration) *StaticProvider {
	if ttl == 0 {
		ttl = time.Hour
	}
	byEmail := make(map[string]StaticUser, len(users))
	for _, u := range users {
		byEmail[u.Email] = u
	}
	return &StaticProvider{
		ttl:     ttl,
		users:   byEmail,
		tokens:  make(map[string]issuedToken),
		emitter: newEmitter(),
	}
}

// NewStaticProviderFromConfig loads the fixture file named in the
// configuration. A missing users_file yields an empty provider.
func NewStaticProviderFromConfig(cfg *config.ProviderConfig) (*StaticProvider, error) {
	var users []StaticUser
	if cfg.UsersFile != "" {
		loaded, err := LoadStaticUsers(cfg.UsersFile)
		if err != nil {
			return nil, err
		}
		users = loaded
	}
	return NewStaticProvider(users, cfg.TokenTTL), nil
}

func (p *StaticProvider) Initialize(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, nil
	}
	rec, ok := p.tokens[p.session.AccessToken]
	if !ok || time.Now().After(rec.expiresAt) {
		p.session = nil
		return nil, nil
	}
	return p.session, nil
}

func (p *StaticProvider) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *StaticProvider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ""
	}
	return p.session.AccessToken
}

func (p *StaticProvider) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	p.mu.Lock()
	u, ok := p.users[creds.Email]
	if !ok || u.Password != creds.Password {
		p.mu.Unlock()
		return nil, &AuthError{Code: "invalid_credentials", Message: "invalid email or password"}
	}
	if !u.Confirmed {
		p.mu.Unlock()
		return nil, &AuthError{Code: "email_not_confirmed", Message: "email not confirmed"}
	}
	sess := p.issueLocked(u)
	p.mu.Unlock()

	p.emitter.emit(Event{Type: EventSignedIn, Session: sess})
	return sess, nil
}

func (p *StaticProvider) SignUp(ctx context.Context, creds Credentials) (*SignUpResult, error) {
	p.mu.Lock()
	if _, exists := p.users[creds.Email]; exists {
		p.mu.Unlock()
		return nil, &AuthError{Code: "user_already_exists", Message: "user already registered"}
	}
	u := StaticUser{
		ID:       uuid.NewString(),
		Email:    creds.Email,
		Name:     creds.Name,
		Password: creds.Password,
		// New accounts wait for confirmation, mirroring the remote
		// provider's default.
	}
	p.users[creds.Email] = u
	p.mu.Unlock()

	return &SignUpResult{User: authstate.NewUser(u.ID, u.Email, u.Name)}, nil
}

func (p *StaticProvider) SignOut(ctx context.Context, scope SignOutScope) error {
	p.mu.Lock()
	if p.session != nil {
		userID := p.session.User.ID
		if scope == ScopeGlobal {
			for tok, rec := range p.tokens {
				if rec.userID == userID {
					delete(p.tokens, tok)
				}
			}
		} else {
			delete(p.tokens, p.session.AccessToken)
		}
		p.session = nil
	}
	p.mu.Unlock()

	p.emitter.emit(Event{Type: EventSignedOut})
	return nil
}

func (p *StaticProvider) VerifyToken(ctx context.Context, token string) (*authstate.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.tokens[token]
	if !ok || time.Now().After(rec.expiresAt) {
		return nil, ErrInvalidToken
	}
	for _, u := range p.users {
		if u.ID == rec.userID {
			return authstate.NewUser(u.ID, u.Email, u.Name), nil
		}
	}
	return nil, ErrInvalidToken
}

func (p *StaticProvider) Events() <-chan Event {
	return p.emitter.events()
}

func (p *StaticProvider) Close() error {
	p.emitter.close()
	return nil
}

// Confirm marks an account as confirmed so a later sign-in succeeds.
func (p *StaticProvider) Confirm(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[email]; ok {
		u.Confirmed = true
		p.users[email] = u
	}
}

// IssueToken mints a token directly, bypassing sign-in. Expired or
// short-lived tokens for verification tests come from here.
func (p *StaticProvider) IssueToken(email string, ttl time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok {
		return "", fmt.Errorf("unknown user %s", email)
	}
	token := uuid.NewString()
	p.tokens[token] = issuedToken{userID: u.ID, expiresAt: time.Now().Add(ttl)}
	return token, nil
}

// issueLocked mints a session for u; callers hold p.mu.
func (p *StaticProvider) issueLocked(u StaticUser) *Session {
	token := uuid.NewString()
	expiry := time.Now().Add(p.ttl)
	p.tokens[token] = issuedToken{userID: u.ID, expiresAt: expiry}

	sess := &Session{User: authstate.NewUser(u.ID, u.Email, u.Name)}
	sess.AccessToken = token
	sess.TokenType = "bearer"
	sess.Expiry = expiry
	p.session = sess
	return sess
}
