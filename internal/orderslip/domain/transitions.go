package domain

import "github.com/smallbiznis/fuelledger/pkg/fsm"

type Event string

const (
	EventAppointSupplier Event = "appoint_supplier"
	EventAppointHauler   Event = "appoint_hauler"
	EventRequestAtl      Event = "request_atl"
	EventBookAtl         Event = "book_atl"
	EventApproveOM       Event = "approve_om"
	EventApproveCNC      Event = "approve_cnc"
	EventApproveFM       Event = "approve_fm"
	EventComplete        Event = "complete"
	EventDisapprove      Event = "disapprove"
	EventExpire          Event = "expire"
	EventClose           Event = "close"
)

var forward = []struct {
	from  Status
	event Event
	to    Status
}{
	{StatusCreated, EventAppointSupplier, StatusSupplierAppointed},
	{StatusSupplierAppointed, EventAppointHauler, StatusHaulerAppointed},
	{StatusHaulerAppointed, EventRequestAtl, StatusForAtlBooking},
	{StatusForAtlBooking, EventBookAtl, StatusForApprovalOfOM},
	{StatusForApprovalOfOM, EventApproveOM, StatusForApprovalOfCNC},
	{StatusForApprovalOfCNC, EventApproveCNC, StatusForApprovalOfFM},
	{StatusForApprovalOfFM, EventApproveFM, StatusForDR},
	{StatusForDR, EventComplete, StatusCompleted},
}

// Machine is the order slip lifecycle.
var Machine = buildMachine()

func buildMachine() *fsm.Table[Status, Event] {
	t := fsm.New[Status, Event]("order_slip")
	for _, edge := range forward {
		t.On(edge.from, edge.event, edge.to)
		// side exits from every non-terminal state
		t.On(edge.from, EventDisapprove, StatusDisapproved)
		t.On(edge.from, EventExpire, StatusExpired)
		t.On(edge.from, EventClose, StatusClosed)
	}
	return t.Terminal(StatusCompleted, StatusDisapproved, StatusExpired, StatusClosed)
}
