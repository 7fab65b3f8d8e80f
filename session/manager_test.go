package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"

	"board-api/domain"
	"board-api/storage"
)

type fakeAccounts struct {
	accounts map[string]struct {
		id       string
		password string
	}
	deletedTasks    []string
	deletedAccounts []string
	deleteTasksErr  error
	deleteAcctErr   error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: map[string]struct {
		id       string
		password string
	}{}}
}

func (f *fakeAccounts) add(id, username, password string) {
	f.accounts[username] = struct {
		id       string
		password string
	}{id: id, password: password}
}

func (f *fakeAccounts) GetAccountByCredentials(ctx context.Context, username, password string) (domain.Account, error) {
	acct, ok := f.accounts[username]
	if !ok || acct.password != password {
		return domain.Account{}, storage.ErrNotFound
	}
	return domain.Account{ID: acct.id, Username: username}, nil
}

func (f *fakeAccounts) InsertAccount(ctx context.Context, username, password string) (domain.Account, error) {
	if _, exists := f.accounts[username]; exists {
		return domain.Account{}, storage.ErrAccountExists
	}
	id := "acct-" + username
	f.add(id, username, password)
	return domain.Account{ID: id, Username: username}, nil
}

func (f *fakeAccounts) DeleteAccount(ctx context.Context, username string) error {
	if f.deleteAcctErr != nil {
		return f.deleteAcctErr
	}
	delete(f.accounts, username)
	f.deletedAccounts = append(f.deletedAccounts, username)
	return nil
}

func (f *fakeAccounts) DeleteTasks(ctx context.Context, ownerID string) error {
	if f.deleteTasksErr != nil {
		return f.deleteTasksErr
	}
	f.deletedTasks = append(f.deletedTasks, ownerID)
	return nil
}

func newTestManager(t *testing.T, store Accounts) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewManager(store, client, []byte("test-secret"), time.Hour, nil), mr
}

func TestLoginSucceedsOnExactMatch(t *testing.T) {
	store := newFakeAccounts()
	store.add("acct-1", "alice", "hunter2")
	m, mr := newTestManager(t, store)

	sess, err := m.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Account.ID != "acct-1" || sess.Account.Username != "alice" {
		t.Fatalf("unexpected account: %#v", sess.Account)
	}
	if sess.Token == "" {
		t.Fatal("expected session token")
	}
	if !mr.Exists("currentUser:acct-1") {
		t.Fatal("expected persisted session record")
	}

	token, err := jwt.Parse(sess.Token, func(tok *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token does not validate: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["sub"] != "acct-1" {
		t.Fatalf("unexpected sub claim: %v", claims["sub"])
	}
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	store := newFakeAccounts()
	store.add("acct-1", "alice", "hunter2")
	m, _ := newTestManager(t, store)

	_, errWrong := m.Login(context.Background(), "alice", "nope")
	_, errUnknown := m.Login(context.Background(), "bob", "nope")
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", errWrong)
	}
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", errUnknown)
	}
}

func TestRegisterDuplicateUsernameFails(t *testing.T) {
	store := newFakeAccounts()
	m, _ := newTestManager(t, store)

	if _, err := m.Register(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := m.Register(context.Background(), "alice", "other"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRestoreAndLogout(t *testing.T) {
	store := newFakeAccounts()
	store.add("acct-1", "alice", "hunter2")
	m, _ := newTestManager(t, store)

	sess, err := m.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	acct, err := m.Restore(context.Background(), sess.Account.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if acct != sess.Account {
		t.Fatalf("unexpected restored account: %#v", acct)
	}

	m.Logout(context.Background(), sess.Account.ID)
	if _, err := m.Restore(context.Background(), sess.Account.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after logout, got %v", err)
	}
}

func TestRestoreWithoutSession(t *testing.T) {
	m, _ := newTestManager(t, newFakeAccounts())
	if _, err := m.Restore(context.Background(), "acct-unknown"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestDeleteProfileCascadesAndLogsOut(t *testing.T) {
	store := newFakeAccounts()
	store.add("acct-1", "alice", "hunter2")
	m, mr := newTestManager(t, store)

	sess, err := m.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := m.DeleteProfile(context.Background(), sess.Account, "hunter2"); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	if len(store.deletedTasks) != 1 || store.deletedTasks[0] != "acct-1" {
		t.Fatalf("expected task cascade for acct-1, got %v", store.deletedTasks)
	}
	if len(store.deletedAccounts) != 1 || store.deletedAccounts[0] != "alice" {
		t.Fatalf("expected account delete, got %v", store.deletedAccounts)
	}
	if mr.Exists("currentUser:acct-1") {
		t.Fatal("expected session cleared")
	}
}

func TestDeleteProfileWrongPasswordLeavesEverything(t *testing.T) {
	store := newFakeAccounts()
	store.add("acct-1", "alice", "hunter2")
	m, mr := newTestManager(t, store)

	sess, err := m.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := m.DeleteProfile(context.Background(), sess.Account, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(store.deletedTasks) != 0 || len(store.deletedAccounts) != 0 {
		t.Fatal("expected no deletions on bad password")
	}
	if !mr.Exists("currentUser:acct-1") {
		t.Fatal("expected session to survive failed profile deletion")
	}
}

func TestDeleteProfileTaskFailureLeavesAccount(t *testing.T) {
	store := newFakeAccounts()
	store.add("acct-1", "alice", "hunter2")
	store.deleteTasksErr = errors.New("store down")
	m, _ := newTestManager(t, store)

	err := m.DeleteProfile(context.Background(), domain.Account{ID: "acct-1", Username: "alice"}, "hunter2")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.deletedAccounts) != 0 {
		t.Fatal("account must not be deleted when the task cascade fails")
	}
}

func TestDeleteProfileAccountFailureReportsOrphan(t *testing.T) {
	store := newFakeAccounts()
	store.add("acct-1", "alice", "hunter2")
	store.deleteAcctErr = errors.New("store down")
	m, _ := newTestManager(t, store)

	err := m.DeleteProfile(context.Background(), domain.Account{ID: "acct-1", Username: "alice"}, "hunter2")
	if err == nil {
		t.Fatal("expected error for orphaned account")
	}
	if len(store.deletedTasks) != 1 {
		t.Fatal("expected task cascade to have run")
	}
}
