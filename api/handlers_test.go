package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"taskflow/domain"
	"taskflow/storage"
	"taskflow/suggest"
)

type fakeSuggester struct {
	mu     sync.Mutex
	res    suggest.Result
	err    error
	titles []string
	busy   bool
}

func (f *fakeSuggester) Suggest(_ context.Context, _ string, titles []string) (suggest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = titles
	return f.res, f.err
}

func (f *fakeSuggester) Busy(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

type testAPI struct {
	e       *echo.Echo
	slots   *storage.Memory
	suggest *fakeSuggester
	updates *Broker
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger, _ := test.NewNullLogger()
	slots := storage.NewMemory()
	clock := func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	ta := &testAPI{
		e:       echo.New(),
		slots:   slots,
		suggest: &fakeSuggester{res: suggest.Result{RequestID: "req-1", Suggestions: []string{"Stretch", "Read"}}},
		updates: NewBroker(),
	}
	Register(ta.e, Deps{
		Workspaces: domain.NewWorkspaces(slots,
			domain.WithClock(clock),
			domain.WithLocation(time.UTC),
			domain.WithLogger(logger),
		),
		Sessions: domain.NewSessionGate(slots, domain.DefaultCredentials()),
		Auth:     NewAuth([]byte("secret"), time.Hour, nil, "", ""),
		Suggest:  ta.suggest,
		Boards:   domain.SeedBoards(),
		Updates:  ta.updates,
		Logger:   logger,
	})
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.e.ServeHTTP(rec, req)
	return rec
}

func (ta *testAPI) login(t *testing.T) string {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/api/session", "", `{"username":"admin","password":"password"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decodeJSON(t, rec, &resp)
	if resp.Token == "" || resp.UserID != "admin" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	return resp.Token
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ta := newTestAPI(t)

	if rec := ta.do(t, http.MethodPost, "/api/session", "", `{"username":"admin","password":"nope"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}
	if rec := ta.do(t, http.MethodPost, "/api/session", "", `{"username":"admin","extra":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
	}

	var status sessionResponse
	rec := ta.do(t, http.MethodGet, "/api/session", "", "")
	decodeJSON(t, rec, &status)
	if status.Authenticated {
		t.Fatalf("expected anonymous session")
	}

	token := ta.login(t)
	rec = ta.do(t, http.MethodGet, "/api/session", token, "")
	decodeJSON(t, rec, &status)
	if !status.Authenticated || status.UserID != "admin" || status.Suggesting {
		t.Fatalf("unexpected status: %+v", status)
	}
	if _, ok, _ := ta.slots.Get(context.Background(), "admin", domain.AuthSlot); !ok {
		t.Fatalf("expected auth flag to be persisted")
	}

	if rec := ta.do(t, http.MethodDelete, "/api/session", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	rec = ta.do(t, http.MethodGet, "/api/tasks", token, "")
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "signed out") {
		t.Fatalf("expected signed out rejection, got %d %s", rec.Code, rec.Body.String())
	}

	// a still valid token re-admits the user through the federated path
	if rec := ta.do(t, http.MethodPost, "/api/session", token, ""); rec.Code != http.StatusOK {
		t.Fatalf("token sign-in: %d %s", rec.Code, rec.Body.String())
	}
	if rec := ta.do(t, http.MethodGet, "/api/tasks", token, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected access after sign-in, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ta := newTestAPI(t)
	for _, path := range []string{"/api/tasks", "/api/boards", "/api/stats", "/api/calendar"} {
		if rec := ta.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: %d", path, rec.Code)
		}
		if rec := ta.do(t, http.MethodGet, path, "not.a.token", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s with garbage token: %d", path, rec.Code)
		}
	}
	if rec := ta.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t)

	rec := ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"  Buy milk ","priority":"high"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	var milk domain.Task
	decodeJSON(t, rec, &milk)
	if milk.Title != "Buy milk" || milk.Priority != domain.PriorityHigh || milk.DueDate != "2025-06-15" || milk.BoardID != domain.DefaultBoardID {
		t.Fatalf("unexpected task: %+v", milk)
	}

	rec = ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"Report","dueDate":"2025-06-10","boardId":"work"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add overdue: %d %s", rec.Code, rec.Body.String())
	}

	if rec := ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"   "}`); rec.Code != http.StatusNoContent {
		t.Fatalf("blank title: %d", rec.Code)
	}
	if rec := ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"x","dueDate":"15/06/2025"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", rec.Code)
	}
	if rec := ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"x","priority":"urgent"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad priority: %d", rec.Code)
	}
	if rec := ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"x","boardId":"garden"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown board: %d", rec.Code)
	}

	var list tasksResponse
	decodeJSON(t, ta.do(t, http.MethodGet, "/api/tasks?view=inbox", token, ""), &list)
	if len(list.Tasks) != 2 || list.View != "inbox" || list.Today != "2025-06-15" {
		t.Fatalf("unexpected inbox: %+v", list)
	}
	if list.Tasks[0].Title != "Report" || !list.Tasks[0].Overdue {
		t.Fatalf("expected overdue report first by date, got %+v", list.Tasks[0])
	}

	decodeJSON(t, ta.do(t, http.MethodGet, "/api/tasks", token, ""), &list)
	if len(list.Tasks) != 1 || list.Tasks[0].ID != milk.ID {
		t.Fatalf("unexpected today view: %+v", list.Tasks)
	}
	decodeJSON(t, ta.do(t, http.MethodGet, "/api/tasks?view=board&board=work", token, ""), &list)
	if len(list.Tasks) != 1 || list.Tasks[0].Title != "Report" {
		t.Fatalf("unexpected board view: %+v", list.Tasks)
	}
	decodeJSON(t, ta.do(t, http.MethodGet, "/api/tasks?view=search&q=MILK", token, ""), &list)
	if len(list.Tasks) != 1 || list.Tasks[0].ID != milk.ID {
		t.Fatalf("unexpected search view: %+v", list.Tasks)
	}
	for _, q := range []string{"view=later", "sort=random", "today=tomorrow"} {
		if rec := ta.do(t, http.MethodGet, "/api/tasks?"+q, token, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}

	rec = ta.do(t, http.MethodPost, "/api/tasks/"+milk.ID+"/toggle", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d", rec.Code)
	}
	var toggled domain.Task
	decodeJSON(t, rec, &toggled)
	if !toggled.Completed {
		t.Fatalf("expected completed task")
	}
	if rec := ta.do(t, http.MethodPost, "/api/tasks/missing/toggle", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("toggle unknown: %d", rec.Code)
	}

	var stats domain.Stats
	decodeJSON(t, ta.do(t, http.MethodGet, "/api/stats", token, ""), &stats)
	if stats != (domain.Stats{Total: 2, Completed: 1, Open: 1, Overdue: 1, Percent: 50}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if rec := ta.do(t, http.MethodDelete, "/api/tasks/"+milk.ID, token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := ta.do(t, http.MethodDelete, "/api/tasks/missing", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete unknown: %d", rec.Code)
	}
	decodeJSON(t, ta.do(t, http.MethodGet, "/api/tasks?view=inbox", token, ""), &list)
	if len(list.Tasks) != 1 {
		t.Fatalf("expected one task left, got %+v", list.Tasks)
	}

	data, ok, err := ta.slots.Get(context.Background(), "admin", domain.TasksSlot)
	if err != nil || !ok || !strings.Contains(string(data), "Report") || strings.Contains(string(data), "Buy milk") {
		t.Fatalf("unexpected persisted tasks: %s %v %v", data, ok, err)
	}
}

func TestSessionReportsSuggestionInFlight(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t)
	ta.suggest.busy = true

	var status sessionResponse
	decodeJSON(t, ta.do(t, http.MethodGet, "/api/session", token, ""), &status)
	if !status.Authenticated || !status.Suggesting {
		t.Fatalf("expected in-flight suggestion to be reported: %+v", status)
	}

	rec := ta.do(t, http.MethodGet, "/api/session", "", "")
	if strings.Contains(rec.Body.String(), `"suggesting":true`) {
		t.Fatalf("anonymous session must not report suggestions: %s", rec.Body.String())
	}
}

func TestSuggestionsFallbackMatchesProviderShape(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t)
	ta.suggest.res = suggest.Result{RequestID: "req-2", Suggestions: suggest.Fallback, Fallback: true}

	rec := ta.do(t, http.MethodPost, "/api/suggestions", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("suggest: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "fallback") {
		t.Fatalf("fallback must not be visible to the client: %s", rec.Body.String())
	}
	var got suggestResponse
	decodeJSON(t, rec, &got)
	if got.RequestID != "req-2" || len(got.Suggestions) != len(suggest.Fallback) {
		t.Fatalf("unexpected suggestions: %+v", got)
	}
}

func TestSuggestionsFlow(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t)
	ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"Plan sprint","boardId":"work"}`)
	ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"Call mum"}`)

	rec := ta.do(t, http.MethodPost, "/api/suggestions", token, `{"board":"work"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("suggest: %d %s", rec.Code, rec.Body.String())
	}
	var got suggestResponse
	decodeJSON(t, rec, &got)
	if got.RequestID != "req-1" || len(got.Suggestions) != 2 {
		t.Fatalf("unexpected suggestions: %+v", got)
	}
	if len(ta.suggest.titles) != 1 || ta.suggest.titles[0] != "Plan sprint" {
		t.Fatalf("expected board scoped titles, got %v", ta.suggest.titles)
	}

	if rec := ta.do(t, http.MethodPost, "/api/suggestions", token, `{"board":"garden"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown board: %d", rec.Code)
	}

	ta.suggest.err = suggest.ErrBusy
	if rec := ta.do(t, http.MethodPost, "/api/suggestions", token, ""); rec.Code != http.StatusConflict {
		t.Fatalf("busy: %d", rec.Code)
	}

	rec = ta.do(t, http.MethodPost, "/api/suggestions/accept", token, `{"titles":["Stretch"," ","Read"],"board":"health"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}
	var accepted acceptResponse
	decodeJSON(t, rec, &accepted)
	if len(accepted.Tasks) != 2 {
		t.Fatalf("expected 2 created tasks, got %+v", accepted.Tasks)
	}
	for _, task := range accepted.Tasks {
		if task.BoardID != "health" || task.DueDate != "2025-06-15" || task.Priority != domain.PriorityMedium {
			t.Fatalf("unexpected accepted task: %+v", task)
		}
	}
}

func TestCalendar(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t)
	ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"Dentist","dueDate":"2025-06-20"}`)

	var month domain.CalendarMonth
	decodeJSON(t, ta.do(t, http.MethodGet, "/api/calendar", token, ""), &month)
	if month.Year != 2025 || month.Month != time.June || len(month.Days) != 30 {
		t.Fatalf("unexpected month: %+v", month)
	}
	if month.Days[19].Due != 1 || !month.Days[14].Today {
		t.Fatalf("unexpected days: %+v %+v", month.Days[19], month.Days[14])
	}

	decodeJSON(t, ta.do(t, http.MethodGet, "/api/calendar?month=2025-02", token, ""), &month)
	if len(month.Days) != 28 {
		t.Fatalf("expected february grid, got %d days", len(month.Days))
	}
	if rec := ta.do(t, http.MethodGet, "/api/calendar?month=June", token, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad month: %d", rec.Code)
	}
}

func TestStreamPushesTaskUpdates(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t)
	srv := httptest.NewServer(ta.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	first := readFrame(t, reader)
	if first != "[]" {
		t.Fatalf("unexpected initial frame: %s", first)
	}

	ta.do(t, http.MethodPost, "/api/tasks", token, `{"title":"Water plants"}`)
	ta.updates.Notify("admin")
	if frame := readFrame(t, reader); !strings.Contains(frame, "Water plants") {
		t.Fatalf("expected pushed task, got %s", frame)
	}
}

func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			if event != "tasks" {
				t.Fatalf("unexpected event %q", event)
			}
			return data
		}
	}
}
