package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow/domain"
	"taskflow/suggest"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Workspaces Workspaces
	Sessions   Sessions
	Auth       *Auth
	Suggest    Suggester
	Boards     domain.Boards
	Updates    *Broker
	Logger     *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Updates == nil {
		d.Updates = NewBroker()
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	authed := requireSession(d.Auth, d.Sessions)

	e.GET("/healthz", healthz())
	e.GET("/api/stream", streamUpdates(d.Workspaces, d.Updates), authed)

	g := e.Group("/api")
	g.Use(requestMetricsMiddleware(d.Logger), GzipRequestMiddleware())
	g.POST("/session", login(d.Auth, d.Sessions))
	g.GET("/session", sessionStatus(d.Auth, d.Sessions, d.Suggest))
	g.DELETE("/session", logout(d.Sessions), authed)
	g.GET("/boards", listBoards(d.Boards), authed)
	g.GET("/tasks", getTasks(d.Workspaces), authed)
	g.POST("/tasks", addTask(d.Workspaces, d.Boards), authed)
	g.POST("/tasks/:id/toggle", toggleTask(d.Workspaces), authed)
	g.DELETE("/tasks/:id", deleteTask(d.Workspaces), authed)
	g.POST("/suggestions", postSuggestions(d.Workspaces, d.Suggest, d.Boards), authed)
	g.POST("/suggestions/accept", acceptSuggestions(d.Workspaces, d.Boards), authed)
	g.GET("/stats", getStats(d.Workspaces), authed)
	g.GET("/calendar", getCalendar(d.Workspaces), authed)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(c echo.Context, v any) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func login(auth *Auth, sessions Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		metrics := metricsFrom(c)
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}

		var userID string
		if req.Username == "" && req.Password == "" {
			// federated sign-in with an identity provider token
			id, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				metrics.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, err.Error())
			}
			if err := sessions.Admit(ctx, id); err != nil {
				metrics.SetErrorStage("session")
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "session unavailable")
			}
			userID = id
		} else {
			id, ok, err := sessions.Login(ctx, req.Username, req.Password)
			if err != nil {
				metrics.SetErrorStage("session")
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "session unavailable")
			}
			if !ok {
				metrics.SetErrorStage("credentials")
				return c.String(http.StatusUnauthorized, "invalid credentials")
			}
			userID = id
		}

		token, expires, err := auth.Issue(userID)
		if err != nil {
			metrics.SetErrorStage("issue_token")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to issue token")
		}
		return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expires.Unix(), UserID: userID})
	}
}

// sessionStatus reports the sign-in flag and whether a suggestion request of
// the user is still in flight.
func sessionStatus(auth Authenticator, sessions Sessions, gw Suggester) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusOK, sessionResponse{})
		}
		ok, err := sessions.Authenticated(c.Request().Context(), userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "session unavailable")
		}
		if !ok {
			return c.JSON(http.StatusOK, sessionResponse{})
		}
		return c.JSON(http.StatusOK, sessionResponse{
			Authenticated: true,
			UserID:        userID,
			Suggesting:    gw.Busy(c.Request().Context(), userID),
		})
	}
}

func logout(sessions Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := sessions.Logout(c.Request().Context(), userFrom(c)); err != nil {
			metricsFrom(c).SetErrorStage("session")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "session unavailable")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listBoards(boards domain.Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, boards)
	}
}

func getTasks(ws Workspaces) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := metricsFrom(c)
		board := strings.TrimSpace(c.QueryParam("board"))
		query := c.QueryParam("q")

		arg := board
		if strings.EqualFold(c.QueryParam("view"), "search") {
			arg = query
		}
		view, err := domain.ParseView(c.QueryParam("view"), arg)
		if err != nil {
			metrics.SetErrorStage("invalid_view")
			return c.String(http.StatusBadRequest, err.Error())
		}
		sortMode, err := domain.ParseSortMode(c.QueryParam("sort"))
		if err != nil {
			metrics.SetErrorStage("invalid_sort")
			return c.String(http.StatusBadRequest, err.Error())
		}

		loadStart := time.Now()
		w := ws.Open(c.Request().Context(), userFrom(c))
		metrics.Observe("load", time.Since(loadStart))

		today := strings.TrimSpace(c.QueryParam("today"))
		if today == "" {
			today = w.Today()
		} else if !domain.ValidDate(today) {
			metrics.SetErrorStage("invalid_today")
			return c.String(http.StatusBadRequest, "invalid today")
		}

		visible := w.Visible(domain.Criteria{
			View:        view,
			ActiveBoard: board,
			Search:      query,
			Sort:        sortMode,
			Today:       today,
		})
		resp := tasksResponse{
			Tasks: make([]taskView, len(visible)),
			View:  view.String(),
			Sort:  sortMode.String(),
			Today: today,
		}
		for i, t := range visible {
			resp.Tasks[i] = taskView{Task: t, Overdue: t.IsOverdue(today)}
		}
		metrics.SetString("view", resp.View)
		metrics.SetInt("tasks_returned", len(visible))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.Observe("encode", time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func addTask(ws Workspaces, boards domain.Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := metricsFrom(c)
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		priority, err := domain.ParsePriority(req.Priority)
		if err != nil {
			metrics.SetErrorStage("validation")
			return c.String(http.StatusBadRequest, err.Error())
		}
		if b := strings.TrimSpace(req.BoardID); b != "" {
			if _, ok := boards.Find(b); !ok {
				metrics.SetErrorStage("validation")
				return c.String(http.StatusBadRequest, "unknown board")
			}
		}

		task, added, err := ws.Open(c.Request().Context(), userFrom(c)).AddTask(c.Request().Context(), domain.NewTask{
			Title:       req.Title,
			DueDate:     req.DueDate,
			DueTime:     req.DueTime,
			Priority:    priority,
			BoardID:     req.BoardID,
			Description: req.Description,
		})
		var vErr *domain.ValidationError
		switch {
		case errors.As(err, &vErr):
			metrics.SetErrorStage("validation")
			return c.String(http.StatusBadRequest, vErr.Error())
		case err != nil:
			metrics.SetErrorStage("storage")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to save task")
		case !added:
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func toggleTask(ws Workspaces) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		task, found, err := ws.Open(ctx, userFrom(c)).ToggleTask(ctx, c.Param("id"))
		if err != nil {
			metricsFrom(c).SetErrorStage("storage")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to save task")
		}
		if !found {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(ws Workspaces) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := ws.Open(ctx, userFrom(c)).DeleteTask(ctx, c.Param("id")); err != nil {
			metricsFrom(c).SetErrorStage("storage")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to save tasks")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postSuggestions(ws Workspaces, gw Suggester, boards domain.Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := metricsFrom(c)
		var req suggestRequest
		if err := decodeBody(c, &req); err != nil {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board := strings.TrimSpace(req.Board)
		if board != "" {
			if _, ok := boards.Find(board); !ok {
				metrics.SetErrorStage("validation")
				return c.String(http.StatusBadRequest, "unknown board")
			}
		}

		ctx := c.Request().Context()
		userID := userFrom(c)
		titles := ws.Open(ctx, userID).Titles(board)

		suggestStart := time.Now()
		res, err := gw.Suggest(ctx, userID, titles)
		metrics.Observe("suggest", time.Since(suggestStart))
		if errors.Is(err, suggest.ErrBusy) {
			metrics.SetErrorStage("busy")
			return c.String(http.StatusConflict, err.Error())
		}
		if err != nil {
			metrics.SetErrorStage("suggest")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "suggestions unavailable")
		}
		metrics.SetBool("fallback", res.Fallback)
		metrics.SetInt("suggestions", len(res.Suggestions))
		return c.JSON(http.StatusOK, suggestResponse{
			RequestID:   res.RequestID,
			Suggestions: res.Suggestions,
		})
	}
}

func acceptSuggestions(ws Workspaces, boards domain.Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := metricsFrom(c)
		var req acceptRequest
		if err := decodeBody(c, &req); err != nil {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board := strings.TrimSpace(req.Board)
		if board != "" {
			if _, ok := boards.Find(board); !ok {
				metrics.SetErrorStage("validation")
				return c.String(http.StatusBadRequest, "unknown board")
			}
		}

		ctx := c.Request().Context()
		created, err := ws.Open(ctx, userFrom(c)).BulkInsertFromSuggestions(ctx, req.Titles, board)
		if err != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to save tasks")
		}
		metrics.SetInt("tasks_created", len(created))
		return c.JSON(http.StatusCreated, acceptResponse{Tasks: created})
	}
}

func getStats(ws Workspaces) echo.HandlerFunc {
	return func(c echo.Context) error {
		w := ws.Open(c.Request().Context(), userFrom(c))
		return c.JSON(http.StatusOK, domain.Summarize(w.Tasks(), w.Today()))
	}
}

func getCalendar(ws Workspaces) echo.HandlerFunc {
	return func(c echo.Context) error {
		w := ws.Open(c.Request().Context(), userFrom(c))
		today := w.Today()
		month := c.QueryParam("month")
		if month == "" {
			month = today[:7]
		}
		first, err := time.Parse("2006-01", month)
		if err != nil {
			metricsFrom(c).SetErrorStage("invalid_month")
			return c.String(http.StatusBadRequest, "invalid month")
		}
		return c.JSON(http.StatusOK, domain.Calendar(w.Tasks(), first.Year(), first.Month(), today))
	}
}
