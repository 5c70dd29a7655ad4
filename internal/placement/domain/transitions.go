package domain

import "github.com/smallbiznis/fuelledger/pkg/fsm"

type Event string

const (
	EventPost      Event = "post"
	EventLock      Event = "lock"
	EventTerminate Event = "terminate"
)

var Machine = fsm.New[Status, Event]("placement").
	On(StatusUnposted, EventPost, StatusPosted).
	On(StatusPosted, EventLock, StatusLocked).
	On(StatusPosted, EventTerminate, StatusTerminated).
	On(StatusLocked, EventTerminate, StatusTerminated).
	Terminal(StatusTerminated)
