package chat

import "strings"

// Identity is the tuple a caller hands to a new session.
type Identity struct {
	UserName        string    `json:"userName"`
	UserType        UserType  `json:"userType"`
	InitialQuestion string    `json:"initialQuestion,omitempty"`
	UserData        *UserData `json:"userData,omitempty"`
}

// NewIdentity validates caller-supplied identity fields. Empty user data is dropped.
func NewIdentity(userName, userType, initialQuestion string, userData *UserData) (Identity, error) {
	ut, err := ParseUserType(userType)
	if err != nil {
		return Identity{}, err
	}
	if userData.Empty() {
		userData = nil
	}
	return Identity{
		UserName:        strings.TrimSpace(userName),
		UserType:        ut,
		InitialQuestion: initialQuestion,
		UserData:        userData,
	}, nil
}

// Snapshot is the render state of one session at a point in time.
type Snapshot struct {
	SessionID  string    `json:"sessionId"`
	Messages   []Message `json:"messages"`
	Input      string    `json:"input"`
	Loading    bool      `json:"loading"`
	Listening  bool      `json:"listening"`
	Speaking   bool      `json:"speaking"`
	SpeakingID string    `json:"speakingId,omitempty"`

	CanSubmit     bool `json:"canSubmit"`
	CanRegenerate bool `json:"canRegenerate"`
	CanClear      bool `json:"canClear"`
	CanExport     bool `json:"canExport"`
}

// Variant is the visual weight of a notification.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a short user-visible message raised by the engine or an adapter.
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant,omitempty"`
}
