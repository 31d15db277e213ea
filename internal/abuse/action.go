package abuse

import "fmt"

// Action is the closed set of ways an abuse report can be resolved. Requests
// carry it as free text; it is parsed exactly once at the boundary and
// switched exhaustively after that.
type Action int

const (
	ActionDismiss Action = iota + 1
	ActionDeleteLink
	ActionBanOwner
)

func ParseAction(s string) (Action, error) {
	switch s {
	case "dismiss":
		return ActionDismiss, nil
	case "delete_url":
		return ActionDeleteLink, nil
	case "ban_user":
		return ActionBanOwner, nil
	default:
		return 0, fmt.Errorf("invalid action %q, must be 'dismiss', 'delete_url', or 'ban_user'", s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionDismiss:
		return "dismiss"
	case ActionDeleteLink:
		return "delete_url"
	case ActionBanOwner:
		return "ban_user"
	default:
		return "unknown"
	}
}
