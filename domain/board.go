package domain

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBoardID is assigned to tasks created without a board.
const DefaultBoardID = "personal"

// Board groups tasks by life area.
type Board struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
	Icon  string `json:"icon" yaml:"icon"`
}

// Boards is an ordered board set.
type Boards []Board

// SeedBoards returns the built-in board set.
func SeedBoards() Boards {
	return Boards{
		{ID: DefaultBoardID, Name: "Personal", Color: "#6366f1", Icon: "user"},
		{ID: "work", Name: "Work", Color: "#0ea5e9", Icon: "briefcase"},
		{ID: "health", Name: "Health", Color: "#22c55e", Icon: "heart"},
		{ID: "learning", Name: "Learning", Color: "#f59e0b", Icon: "book"},
	}
}

// Find looks a board up by id.
func (b Boards) Find(id string) (Board, bool) {
	for _, board := range b {
		if board.ID == id {
			return board, true
		}
	}
	return Board{}, false
}

type boardsFile struct {
	Boards Boards `yaml:"boards"`
}

// LoadBoardsFile reads a YAML board seed of the form
//
//	boards:
//	  - id: work
//	    name: Work
//	    color: "#0ea5e9"
//	    icon: briefcase
//
// The default board must be present so tasks created without a board stay
// reachable.
func LoadBoardsFile(path string) (Boards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f boardsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(f.Boards))
	for i, b := range f.Boards {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return nil, fmt.Errorf("board %d: missing id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("board %q defined twice", id)
		}
		seen[id] = struct{}{}
		f.Boards[i].ID = id
		if f.Boards[i].Name == "" {
			f.Boards[i].Name = id
		}
	}
	if _, ok := f.Boards.Find(DefaultBoardID); !ok {
		return nil, errors.New("board seed must include the " + DefaultBoardID + " board")
	}
	return f.Boards, nil
}
