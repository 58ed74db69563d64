package domain

import (
	"fmt"
	"strings"
)

// ViewKind tags the variant held by a View.
type ViewKind int

const (
	// ViewToday is the zero value so an unset View selects Today.
	ViewToday ViewKind = iota
	ViewInbox
	ViewUpcoming
	ViewBoard
	ViewSearch
)

// View selects the lens applied to the task collection. BoardID is set
// only for ViewBoard and Query only for ViewSearch.
type View struct {
	Kind    ViewKind
	BoardID string
	Query   string
}

func Today() View { return View{Kind: ViewToday} }
func Inbox() View { return View{Kind: ViewInbox} }
func Upcoming() View { return View{Kind: ViewUpcoming} }
func BoardView(id string) View { return View{Kind: ViewBoard, BoardID: id} }
func SearchView(query string) View { return View{Kind: ViewSearch, Query: query} }

// ParseView builds a View from its name and argument as used on the wire,
// e.g. ("board", "work") or ("search", "milk"). An empty name is Today.
func ParseView(name, arg string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "today":
		return Today(), nil
	case "inbox":
		return Inbox(), nil
	case "upcoming":
		return Upcoming(), nil
	case "board":
		return BoardView(strings.TrimSpace(arg)), nil
	case "search":
		return SearchView(arg), nil
	}
	return View{}, fmt.Errorf("unknown view %q", name)
}

func (v View) String() string {
	switch v.Kind {
	case ViewInbox:
		return "inbox"
	case ViewUpcoming:
		return "upcoming"
	case ViewBoard:
		return "board:" + v.BoardID
	case ViewSearch:
		return "search:" + v.Query
	default:
		return "today"
	}
}
