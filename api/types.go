package api

import (
	"context"

	"taskflow/domain"
	"taskflow/suggest"
)

// Workspaces opens the task workspace of a user.
type Workspaces interface {
	Open(ctx context.Context, userID string) *domain.Workspace
}

// Sessions is the persisted sign-in flag.
type Sessions interface {
	Login(ctx context.Context, username, password string) (userID string, ok bool, err error)
	Admit(ctx context.Context, userID string) error
	Logout(ctx context.Context, userID string) error
	Authenticated(ctx context.Context, userID string) (bool, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Suggester produces task suggestions for a user.
type Suggester interface {
	Suggest(ctx context.Context, userID string, titles []string) (suggest.Result, error)
	Busy(ctx context.Context, userID string) bool
}

const maxBodySize = 64 * 1024 // 64 KiB

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	UserID    string `json:"userId"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Suggesting    bool   `json:"suggesting"`
}

type addTaskRequest struct {
	Title       string `json:"title"`
	DueDate     string `json:"dueDate"`
	DueTime     string `json:"dueTime"`
	Priority    string `json:"priority"`
	BoardID     string `json:"boardId"`
	Description string `json:"description"`
}

type taskView struct {
	domain.Task
	Overdue bool `json:"overdue"`
}

type tasksResponse struct {
	Tasks []taskView `json:"tasks"`
	View  string     `json:"view"`
	Sort  string     `json:"sort"`
	Today string     `json:"today"`
}

type suggestRequest struct {
	Board string `json:"board"`
}

type suggestResponse struct {
	RequestID   string   `json:"requestId"`
	Suggestions []string `json:"suggestions"`
}

type acceptRequest struct {
	Titles []string `json:"titles"`
	Board  string   `json:"board"`
}

type acceptResponse struct {
	Tasks []domain.Task `json:"tasks"`
}
