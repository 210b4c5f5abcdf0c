package relationship

import "errors"

// ErrConflict marks a transition that is a benign duplicate (accepting an
// already-resolved request, re-sending a pending request). Callers treat it
// as a no-op, not a failure.
var ErrConflict = errors.New("relationship state conflict")

// Status is the derived relationship between self and one other player.
// Exactly one holds for a pair at any time.
type Status string

const (
	StatusNone            Status = "none"
	StatusOutgoingPending Status = "outgoing_pending"
	StatusIncomingPending Status = "incoming_pending"
	StatusFriends         Status = "friends"
	StatusBlockedByMe     Status = "blocked_by_me"
	StatusBlockedByThem   Status = "blocked_by_them"
	StatusMutuallyBlocked Status = "mutually_blocked"
)

// Transition is one relationship-changing occurrence, from either a local
// intent or an inbound confirmation.
type Transition string

const (
	TransRequestSent     Transition = "request_sent"
	TransRequestReceived Transition = "request_received"
	TransAccepted        Transition = "accepted"
	TransRejected        Transition = "rejected"
	TransFriendRemoved   Transition = "friend_removed"
	TransBlockedByMe     Transition = "blocked_by_me"
	TransBlockedByThem   Transition = "blocked_by_them"
	TransUnblockedByMe   Transition = "unblocked_by_me"
	TransUnblockedByThem Transition = "unblocked_by_them"
)

// Next computes the pair status after a transition. Returning ErrConflict
// leaves the status unchanged; blocking always wins over whatever held
// before, and unblocking never restores a prior request or friendship.
func Next(cur Status, tr Transition) (Status, error) {
	switch tr {
	case TransRequestSent:
		if cur == StatusNone {
			return StatusOutgoingPending, nil
		}
		return cur, ErrConflict

	case TransRequestReceived:
		if cur == StatusNone {
			return StatusIncomingPending, nil
		}
		return cur, ErrConflict

	case TransAccepted:
		if cur == StatusIncomingPending || cur == StatusOutgoingPending {
			return StatusFriends, nil
		}
		return cur, ErrConflict

	case TransRejected:
		if cur == StatusIncomingPending || cur == StatusOutgoingPending {
			return StatusNone, nil
		}
		return cur, ErrConflict

	case TransFriendRemoved:
		if cur == StatusFriends {
			return StatusNone, nil
		}
		return cur, ErrConflict

	case TransBlockedByMe:
		if cur == StatusBlockedByThem || cur == StatusMutuallyBlocked {
			return StatusMutuallyBlocked, nil
		}
		return StatusBlockedByMe, nil

	case TransBlockedByThem:
		if cur == StatusBlockedByMe || cur == StatusMutuallyBlocked {
			return StatusMutuallyBlocked, nil
		}
		return StatusBlockedByThem, nil

	case TransUnblockedByMe:
		switch cur {
		case StatusBlockedByMe:
			return StatusNone, nil
		case StatusMutuallyBlocked:
			return StatusBlockedByThem, nil
		}
		return cur, ErrConflict

	case TransUnblockedByThem:
		switch cur {
		case StatusBlockedByThem:
			return StatusNone, nil
		case StatusMutuallyBlocked:
			return StatusBlockedByMe, nil
		}
		return cur, ErrConflict
	}

	return cur, ErrConflict
}
