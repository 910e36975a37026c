package relay

// State is a point in the relay lifecycle:
//
//	Uninitialized -> Connecting -> Subscribed -> Unsubscribing -> Closed
//	                     |
//	                     +-> Failed -> (Start again) | Closed
type State int32

const (
	StateUninitialized State = iota
	StateConnecting
	StateSubscribed
	StateUnsubscribing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribing:
		return "unsubscribing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
