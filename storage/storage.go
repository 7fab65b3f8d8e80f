package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"board-api/domain"
)

var (
	// ErrNotFound is returned when no row matches the requested keys.
	ErrNotFound = errors.New("not found")
	// ErrAccountExists is returned when a conditional account insert hits an
	// existing username.
	ErrAccountExists = errors.New("account already exists")
)

// Storage provides access to the account and task tables and the reconcile
// queue.
type Storage struct {
	accountTable   *aztables.Client
	taskTable      *aztables.Client
	reconcileQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, accountsTable, tasksTable, reconcileQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	at := svc.NewClient(accountsTable)
	tt := svc.NewClient(tasksTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	rq, err := azqueue.NewQueueClientFromConnectionString(connStr, reconcileQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{accountTable: at, taskTable: tt, reconcileQueue: rq}, nil
}

// Accounts are partitioned by username with a constant row key so that the
// conditional insert in InsertAccount enforces username uniqueness.
const accountRowKey = "account"

type accountEntity struct {
	aztables.Entity
	ID       string `json:"Id"`
	Password string `json:"Password"`
}

type taskEntity struct {
	aztables.Entity
	Text   string `json:"Text"`
	Status string `json:"Status"`
	Order  int    `json:"Order"`
}

// GetAccountByCredentials returns the account matching both username and
// password. A missing row and a password mismatch are indistinguishable to
// callers: both yield ErrNotFound.
func (s *Storage) GetAccountByCredentials(ctx context.Context, username, password string) (domain.Account, error) {
	ent, err := s.accountTable.GetEntity(ctx, username, accountRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, err
	}
	var acct accountEntity
	if err := json.Unmarshal(ent.Value, &acct); err != nil {
		return domain.Account{}, err
	}
	if acct.Password != password {
		return domain.Account{}, ErrNotFound
	}
	return domain.Account{ID: acct.ID, Username: username}, nil
}

// InsertAccount creates a new account row. The insert is conditional: it
// fails atomically with ErrAccountExists when the username is taken.
func (s *Storage) InsertAccount(ctx context.Context, username, password string) (domain.Account, error) {
	ent := accountEntity{
		Entity:   aztables.Entity{PartitionKey: username, RowKey: accountRowKey},
		ID:       uuid.NewString(),
		Password: password,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Account{}, err
	}
	if _, err := s.accountTable.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 409 {
			return domain.Account{}, ErrAccountExists
		}
		return domain.Account{}, err
	}
	return domain.Account{ID: ent.ID, Username: username}, nil
}

// DeleteAccount removes the account row for the given username.
func (s *Storage) DeleteAccount(ctx context.Context, username string) error {
	_, err := s.accountTable.DeleteEntity(ctx, username, accountRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return ErrNotFound
		}
	}
	return err
}

// FetchTasks retrieves all tasks owned by the given account.
func (s *Storage) FetchTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, domain.Task{
				ID:     ent.RowKey,
				Text:   ent.Text,
				Status: domain.Status(ent.Status),
				Owner:  ent.PartitionKey,
				Order:  ent.Order,
			})
		}
	}
	return tasks, nil
}

// InsertTask writes a new task row and returns it with the store-assigned id.
func (s *Storage) InsertTask(ctx context.Context, ownerID, text string, status domain.Status, order int) (domain.Task, error) {
	ent := taskEntity{
		Entity: aztables.Entity{PartitionKey: ownerID, RowKey: uuid.NewString()},
		Text:   text,
		Status: string(status),
		Order:  order,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:     ent.RowKey,
		Text:   text,
		Status: status,
		Owner:  ownerID,
		Order:  order,
	}, nil
}

type taskUpdateEntity struct {
	aztables.Entity
	Text   *string `json:"Text,omitempty"`
	Status *string `json:"Status,omitempty"`
	Order  *int    `json:"Order,omitempty"`
}

// UpdateTask merges the provided fields into an existing task row.
func (s *Storage) UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) error {
	ent := taskUpdateEntity{
		Entity: aztables.Entity{PartitionKey: ownerID, RowKey: taskID},
		Text:   upd.Text,
		Order:  upd.Order,
	}
	if upd.Status != nil {
		st := string(*upd.Status)
		ent.Status = &st
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return ErrNotFound
		}
	}
	return err
}

// DeleteTask removes a single task row.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, ownerID, taskID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return ErrNotFound
		}
	}
	return err
}

// DeleteTasks removes every task owned by the given account. Used as the
// first phase of profile deletion.
func (s *Storage) DeleteTasks(ctx context.Context, ownerID string) error {
	tasks, err := s.FetchTasks(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.DeleteTask(ctx, ownerID, t.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// ReconcileJob asks the reconcile worker to restore a user's board from
// remote truth.
type ReconcileJob struct {
	UserID string `json:"userId"`
}

// EnqueueReconcile schedules a reconciliation pass for the given account.
func (s *Storage) EnqueueReconcile(ctx context.Context, ownerID string) error {
	data, err := json.Marshal(ReconcileJob{UserID: ownerID})
	if err != nil {
		return err
	}
	_, err = s.reconcileQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// DequeueReconcile retrieves a single reconcile message, or nil when the
// queue is empty.
func (s *Storage) DequeueReconcile(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.reconcileQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// DeleteReconcile removes a processed message from the reconcile queue.
func (s *Storage) DeleteReconcile(ctx context.Context, id, receipt string) error {
	_, err := s.reconcileQueue.DeleteMessage(ctx, id, receipt, nil)
	return err
}
