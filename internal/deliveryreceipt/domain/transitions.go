package domain

import "github.com/smallbiznis/fuelledger/pkg/fsm"

type Event string

const (
	EventApprove Event = "approve"
	EventDeliver Event = "deliver"
	EventInvoice Event = "invoice"
	EventCancel  Event = "cancel"
	EventVoid    Event = "void"
)

// Machine is the delivery receipt lifecycle.
var Machine = fsm.New[Status, Event]("delivery_receipt").
	On(StatusForApprovalOfOM, EventApprove, StatusPendingDelivery).
	On(StatusPendingDelivery, EventDeliver, StatusForInvoicing).
	On(StatusForInvoicing, EventInvoice, StatusInvoiced).
	On(StatusForApprovalOfOM, EventCancel, StatusCanceled).
	On(StatusPendingDelivery, EventCancel, StatusCanceled).
	On(StatusForInvoicing, EventCancel, StatusCanceled).
	On(StatusInvoiced, EventVoid, StatusVoided).
	Terminal(StatusCanceled, StatusVoided)
