package chat

import (
	"fmt"
	"strings"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable turn of the conversation.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserType selects the tone of the greeting and of the system prompt.
type UserType string

const (
	UserTypeMuslim    UserType = "muslim"
	UserTypeNonMuslim UserType = "non-muslim"
)

// ParseUserType normalises the wire value. An empty value maps to muslim, matching
// the gateway default.
func ParseUserType(raw string) (UserType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(UserTypeMuslim):
		return UserTypeMuslim, nil
	case string(UserTypeNonMuslim), "non_muslim", "nonmuslim":
		return UserTypeNonMuslim, nil
	default:
		return "", fmt.Errorf("unknown user type %q", raw)
	}
}

// UserData carries the optional background a non-Muslim user shares with the assistant.
type UserData struct {
	Profession string `json:"profession,omitempty"`
	Beliefs    string `json:"beliefs,omitempty"`
}

// Empty reports whether neither field was supplied.
func (d *UserData) Empty() bool {
	return d == nil || (strings.TrimSpace(d.Profession) == "" && strings.TrimSpace(d.Beliefs) == "")
}
