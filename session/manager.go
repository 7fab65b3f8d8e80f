package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
	"board-api/storage"
)

var (
	// ErrInvalidCredentials is returned for both an unknown username and a
	// wrong password; callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken is returned when registration hits an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrNoSession is returned when no persisted session record exists for an
	// account id.
	ErrNoSession = errors.New("no active session")
)

// Accounts is the slice of the store the session manager needs.
type Accounts interface {
	GetAccountByCredentials(ctx context.Context, username, password string) (domain.Account, error)
	InsertAccount(ctx context.Context, username, password string) (domain.Account, error)
	DeleteAccount(ctx context.Context, username string) error
	DeleteTasks(ctx context.Context, ownerID string) error
}

// Session is the result of a successful login or registration.
type Session struct {
	Token   string         `json:"token"`
	Account domain.Account `json:"account"`
}

// Manager owns the currently authenticated accounts. Each account's
// {id, username} record is persisted in redis under currentUser:<id> and is
// trusted on restore without remote validation until explicit logout.
type Manager struct {
	store  Accounts
	redis  *redis.Client
	secret []byte
	ttl    time.Duration
	log    *log.Logger
}

// NewManager creates a session manager. secret signs session tokens; ttl
// bounds both token validity and the persisted session record.
func NewManager(store Accounts, client *redis.Client, secret []byte, ttl time.Duration, logger *log.Logger) *Manager {
	if store == nil {
		panic("session.NewManager: account store is nil")
	}
	if len(secret) == 0 {
		panic("session.NewManager: empty signing secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, redis: client, secret: secret, ttl: ttl, log: logger}
}

// Login authenticates against the account table. It succeeds only when
// exactly one row matches both username and password.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	acct, err := m.store.GetAccountByCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	return m.open(ctx, acct)
}

// Register creates a new account and logs it in. The underlying insert is
// conditional, so a concurrent registration of the same username fails
// atomically instead of racing a prior existence check.
func (m *Manager) Register(ctx context.Context, username, password string) (Session, error) {
	acct, err := m.store.InsertAccount(ctx, username, password)
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			return Session{}, ErrUsernameTaken
		}
		return Session{}, err
	}
	return m.open(ctx, acct)
}

// Restore resolves an account id extracted from a session token to the
// persisted account record. The cached identity is trusted as-is.
func (m *Manager) Restore(ctx context.Context, accountID string) (domain.Account, error) {
	if m.redis == nil {
		return domain.Account{}, ErrNoSession
	}
	data, err := m.redis.Get(ctx, sessionKey(accountID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.Account{}, ErrNoSession
		}
		return domain.Account{}, err
	}
	var acct domain.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		_ = m.redis.Del(ctx, sessionKey(accountID)).Err()
		return domain.Account{}, ErrNoSession
	}
	return acct, nil
}

// Logout clears the persisted session record. It always succeeds: a storage
// error only means the record expires on its own.
func (m *Manager) Logout(ctx context.Context, accountID string) {
	if m.redis == nil {
		return
	}
	if err := m.redis.Del(ctx, sessionKey(accountID)).Err(); err != nil && m.log != nil {
		m.log.WithFields(log.Fields{"account": accountID, "error": err}).Warn("session record not removed")
	}
}

// DeleteProfile removes all tasks owned by the account, then the account row,
// then logs the session out. The two deletions are not atomic: when the
// account delete fails after the task delete succeeded, the store is left
// with an orphaned account that owns no tasks. That partial state is reported
// but not rolled back.
func (m *Manager) DeleteProfile(ctx context.Context, acct domain.Account, password string) error {
	if _, err := m.store.GetAccountByCredentials(ctx, acct.Username, password); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := m.store.DeleteTasks(ctx, acct.ID); err != nil {
		return err
	}
	if err := m.store.DeleteAccount(ctx, acct.Username); err != nil && !errors.Is(err, storage.ErrNotFound) {
		if m.log != nil {
			m.log.WithFields(log.Fields{"account": acct.ID, "error": err}).Error("account delete failed after task delete; account is orphaned")
		}
		return err
	}
	m.Logout(ctx, acct.ID)
	return nil
}

func (m *Manager) open(ctx context.Context, acct domain.Account) (Session, error) {
	token, err := m.mint(acct)
	if err != nil {
		return Session{}, err
	}
	if m.redis != nil {
		data, err := json.Marshal(acct)
		if err != nil {
			return Session{}, err
		}
		if err := m.redis.Set(ctx, sessionKey(acct.ID), data, m.ttl).Err(); err != nil {
			return Session{}, err
		}
	}
	return Session{Token: token, Account: acct}, nil
}

func (m *Manager) mint(acct domain.Account) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      acct.ID,
		"username": acct.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(m.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func sessionKey(accountID string) string {
	return "currentUser:" + accountID
}
