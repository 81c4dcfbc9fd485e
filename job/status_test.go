package job

import (
	"errors"
	"testing"
)

func TestEdgeActorLegalEdges(t *testing.T) {
	cases := []struct {
		from, to Status
		actor    Actor
	}{
		{StatusCreated, StatusAccepted, ActorSeller},
		{StatusCreated, StatusRejected, ActorSeller},
		{StatusCreated, StatusExpired, ActorSystem},
		{StatusAccepted, StatusDelivering, ActorSeller},
		{StatusAccepted, StatusExpired, ActorSystem},
		{StatusDelivering, StatusCompleted, ActorSeller},
		{StatusDelivering, StatusDisputed, ActorSeller},
	}

	for _, c := range cases {
		actor, err := EdgeActor(c.from, c.to)
		if err != nil {
			t.Errorf("%s -> %s: expected legal edge, got %v", c.from, c.to, err)
			continue
		}
		if actor != c.actor {
			t.Errorf("%s -> %s: expected actor %s, got %s", c.from, c.to, c.actor, actor)
		}
	}
}

func TestEdgeActorRejectsBackwardAndSkippingEdges(t *testing.T) {
	illegal := [][2]Status{
		{StatusAccepted, StatusCreated},    // backward
		{StatusDelivering, StatusAccepted}, // backward
		{StatusCompleted, StatusAccepted},  // backward from terminal
		{StatusCreated, StatusDelivering},  // skips accepted
		{StatusCreated, StatusCompleted},   // skips two states
		{StatusAccepted, StatusCompleted},  // skips delivering
		{StatusAccepted, StatusDisputed},   // disputes only from delivering
		{StatusCompleted, StatusDisputed},  // terminal
		{StatusExpired, StatusAccepted},    // terminal
		{StatusRejected, StatusAccepted},   // terminal
		{StatusDelivering, StatusExpired},  // in-flight work never expires
	}

	for _, e := range illegal {
		if _, err := EdgeActor(e[0], e[1]); !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: expected ErrIllegalTransition, got %v", e[0], e[1], err)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusDisputed, StatusExpired, StatusRejected} {
		if !Terminal(s) {
			t.Errorf("%s: expected terminal", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusAccepted, StatusDelivering} {
		if Terminal(s) {
			t.Errorf("%s: expected non-terminal", s)
		}
	}
}

func TestValidStatus(t *testing.T) {
	if ValidStatus("failed") {
		t.Errorf("there is no failed state; disputed is the failure terminal")
	}
	if !ValidStatus(StatusDisputed) {
		t.Errorf("disputed must be a known state")
	}
}
