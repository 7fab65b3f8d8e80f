package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
	"board-api/session"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, sessions Sessions, boards Boards, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.POST("/api/register", registerAccount(sessions))
	e.POST("/api/login", login(sessions))
	e.POST("/api/logout", logout(sessions, boards, auth))
	e.DELETE("/api/profile", deleteProfile(sessions, boards, auth))

	e.GET("/api/tasks", getTasks(sessions, boards, auth, logger))
	e.POST("/api/tasks", addTask(sessions, boards, auth, deduper))
	e.DELETE("/api/tasks/:id", deleteTask(sessions, boards, auth, deduper))
	e.POST("/api/tasks/:id/move", moveTask(sessions, boards, auth, deduper))
	e.POST("/api/tasks/reorder", reorderTasks(sessions, boards, auth, deduper))

	e.GET("/healthz", healthz())
}

type tasksResponse struct {
	Todo  []domain.Task `json:"todo"`
	Doing []domain.Task `json:"doing"`
	Done  []domain.Task `json:"done"`
}

type duplicateResponse struct {
	Duplicate bool `json:"duplicate"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func registerAccount(sessions Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Username == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "username and password required"})
		}
		sess, err := sessions.Register(c.Request().Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, session.ErrUsernameTaken) {
				return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, sess)
	}
}

func login(sessions Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		sess, err := sessions.Login(c.Request().Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, session.ErrInvalidCredentials) {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, sess)
	}
}

func logout(sessions Sessions, boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct, err := currentAccount(c, auth, sessions)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sessions.Logout(c.Request().Context(), acct.ID)
		boards.Drop(acct.ID)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteProfile(sessions Sessions, boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct, err := currentAccount(c, auth, sessions)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		// Profile deletion requires the credentials to be re-entered.
		if req.Username != acct.Username {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: session.ErrInvalidCredentials.Error()})
		}
		if err := sessions.DeleteProfile(c.Request().Context(), acct, req.Password); err != nil {
			if errors.Is(err, session.ErrInvalidCredentials) {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		boards.Drop(acct.ID)
		return c.NoContent(http.StatusNoContent)
	}
}

func getTasks(sessions Sessions, boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		acct, authErr := currentAccount(c, auth, sessions)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		b := boards.Board(acct)
		fetchStart := time.Now()
		fetchErr := b.Ensure(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetBoardLoaded(true)

		snapshot := b.Snapshot()
		metrics.SetTasksReturned(len(snapshot))
		resp := tasksResponse{
			Todo:  domain.Column(snapshot, domain.StatusTodo),
			Doing: domain.Column(snapshot, domain.StatusDoing),
			Done:  domain.Column(snapshot, domain.StatusDone),
		}
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func addTask(sessions Sessions, boards Boards, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct, err := currentAccount(c, auth, sessions)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		ctx := c.Request().Context()
		release, duplicate := replayGuard(c, deduper, acct.ID)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		task, err := boards.Board(acct).Add(ctx, req.Text)
		if err != nil {
			release(ctx)
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		if task == nil {
			// Empty text after trimming: ignored without feedback.
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func deleteTask(sessions Sessions, boards Boards, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct, err := currentAccount(c, auth, sessions)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ctx := c.Request().Context()
		release, duplicate := replayGuard(c, deduper, acct.ID)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		if err := boards.Board(acct).Delete(ctx, c.Param("id")); err != nil {
			release(ctx)
			if errors.Is(err, board.ErrTaskNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func moveTask(sessions Sessions, boards Boards, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct, err := currentAccount(c, auth, sessions)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		ctx := c.Request().Context()
		release, duplicate := replayGuard(c, deduper, acct.ID)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		if err := boards.Board(acct).Move(ctx, c.Param("id"), domain.Status(req.Status)); err != nil {
			release(ctx)
			switch {
			case errors.Is(err, board.ErrInvalidStatus):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			case errors.Is(err, board.ErrTaskNotFound):
				return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func reorderTasks(sessions Sessions, boards Boards, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct, err := currentAccount(c, auth, sessions)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Destination == "" {
			// Drag cancelled: nothing to do.
			return c.NoContent(http.StatusNoContent)
		}

		ctx := c.Request().Context()
		release, duplicate := replayGuard(c, deduper, acct.ID)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		err = boards.Board(acct).Reorder(ctx, domain.Status(req.Source), req.SourceIndex, domain.Status(req.Destination), req.DestIndex, req.TaskID)
		if err != nil {
			release(ctx)
			switch {
			case errors.Is(err, board.ErrInvalidStatus):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			case errors.Is(err, board.ErrSyncIncomplete):
				// Local state is already applied; a reconcile is scheduled.
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "some changes were not saved; the board will be reconciled"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func currentAccount(c echo.Context, auth Authenticator, sessions Sessions) (domain.Account, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return domain.Account{}, err
	}
	return sessions.Restore(c.Request().Context(), userID)
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// replayGuard applies the Idempotency-Key header when present. The returned
// release func re-admits the key after a failed mutation so the client may
// retry.
func replayGuard(c echo.Context, deduper Deduper, userID string) (func(ctx context.Context), bool) {
	noop := func(context.Context) {}
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" || deduper == nil {
		return noop, false
	}
	ctx := c.Request().Context()
	added, err := deduper.Add(ctx, userID, key)
	if err != nil {
		// Dedupe is best effort: a redis failure must not block mutations.
		c.Logger().Warnf("idempotency check failed: %v", err)
		return noop, false
	}
	if !added {
		return noop, true
	}
	return func(ctx context.Context) {
		if err := deduper.Remove(ctx, userID, key); err != nil {
			c.Logger().Warnf("idempotency rollback failed: %v", err)
		}
	}, false
}
