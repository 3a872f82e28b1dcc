package eventbus

// MembershipAction is the kind of a membership change.
type MembershipAction string

const (
	ActionAdd    MembershipAction = "add"
	ActionRemove MembershipAction = "remove"
)

// Member is one participant named in a membership change.
type Member struct {
	ID string
	// Bot is true for any bot account. Self is true for our own session's bot.
	Bot  bool
	Self bool
}

// MembershipChange is the Data of TypeMembershipChanged.
type MembershipChange struct {
	Action        MembershipAction
	SessionID     string
	DestinationID string
	Members       []Member
}

// SessionState is the Data of TypeSessionConnected and TypeSessionDisconnected.
type SessionState struct {
	SessionID string
	Err       error
}

// PollAnswer is the Data of TypePollAnswered. Options are the chosen option
// indexes.
type PollAnswer struct {
	SessionID    string
	SubscriberID string
	PollID       string
	Options      []int
}
