package job

import (
	"errors"
	"fmt"
)

// Status is a job lifecycle state. Transitions are monotonic: no edge moves a
// job backward or skips a state.
type Status string

const (
	StatusCreated    Status = "created"
	StatusAccepted   Status = "accepted"
	StatusDelivering Status = "delivering"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusExpired    Status = "expired"
	StatusRejected   Status = "rejected"
)

var (
	// ErrIllegalTransition signals a requested edge outside the adjacency set.
	ErrIllegalTransition = errors.New("job: illegal status transition")
	// ErrUnauthorized signals the acting wallet does not own the attempted edge.
	ErrUnauthorized = errors.New("job: actor not permitted for this transition")
	// ErrClaimConflict signals a lost race on a conditional status update. The
	// loser skips the job; this is not an application-visible failure.
	ErrClaimConflict = errors.New("job: concurrent update won the claim")
	// ErrNotFound is returned when no job row exists for the identifier.
	ErrNotFound = errors.New("job: not found")
)

// Actor identifies who may drive a given edge.
type Actor string

const (
	ActorSeller Actor = "seller"
	ActorSystem Actor = "system"
)

// adjacency is the full legal edge set. Completed and disputed are the success
// and failure terminals; expired and rejected close unfulfilled jobs. There is
// deliberately no generic failed state: a paying buyer is owed a deliverable or
// a remedy, so mid-execution failure lands in disputed for resolution.
var adjacency = map[Status]map[Status]Actor{
	StatusCreated: {
		StatusAccepted: ActorSeller,
		StatusRejected: ActorSeller,
		StatusExpired:  ActorSystem,
	},
	StatusAccepted: {
		StatusDelivering: ActorSeller,
		StatusExpired:    ActorSystem,
	},
	StatusDelivering: {
		StatusCompleted: ActorSeller,
		StatusDisputed:  ActorSeller,
	},
}

// Terminal reports whether no edges leave s.
func Terminal(s Status) bool {
	return len(adjacency[s]) == 0
}

// ValidStatus reports whether s names a known state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusCreated, StatusAccepted, StatusDelivering, StatusCompleted,
		StatusDisputed, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

// EdgeActor returns which actor drives from->to, or ErrIllegalTransition when
// the edge is not in the adjacency set.
func EdgeActor(from, to Status) (Actor, error) {
	actor, ok := adjacency[from][to]
	if !ok {
		return "", fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return actor, nil
}

// timestampColumn maps a target state onto the job column stamped when the
// state is entered. Expired and rejected reuse completed_at as their closing
// timestamp.
func timestampColumn(to Status) string {
	switch to {
	case StatusAccepted:
		return "accepted_at"
	case StatusDelivering:
		return "delivering_at"
	case StatusCompleted, StatusDisputed, StatusExpired, StatusRejected:
		return "completed_at"
	default:
		return ""
	}
}
