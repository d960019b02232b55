package service

import (
	"github.com/immxrtalbeast/ordergroup/internal/domain"
)

// Policy rejections are values, not errors. Callers branch on them to
// pick what to render.

type DisabledReason string

const (
	ReasonTimeOut    DisabledReason = "time_out"
	ReasonOrderLimit DisabledReason = "order_limit"
)

// OrderOutcome is either an open order or a disabled state with a reason.
type OrderOutcome struct {
	Order    *domain.Order
	Disabled bool
	Reason   DisabledReason
	// TimeLeft is the number of seconds left in the ordering window.
	TimeLeft int
}

func enabled(order *domain.Order, timeLeft int) OrderOutcome {
	return OrderOutcome{Order: order, TimeLeft: timeLeft}
}

func disabled(reason DisabledReason, timeLeft int) OrderOutcome {
	return OrderOutcome{Disabled: true, Reason: reason, TimeLeft: timeLeft}
}

type ItemStatus string

const (
	ItemAdded    ItemStatus = "added"
	ItemDeleted  ItemStatus = "deleted"
	ItemRejected ItemStatus = "rejected"
	// ItemSkipped marks a request from someone who does not own the order.
	ItemSkipped ItemStatus = "skipped"
)

const (
	ReasonOrderFinished = "order already finished"
	ReasonAddItemsFirst = "add items first"
)

type ItemResult struct {
	Status ItemStatus
	Item   *domain.OrderItem
	Order  *domain.Order
	Reason string
}

type FinishStatus string

const (
	FinishDone     FinishStatus = "finished"
	FinishNoop     FinishStatus = "already_finished"
	FinishRejected FinishStatus = "rejected"
	FinishSkipped  FinishStatus = "skipped"
)

type FinishResult struct {
	Status FinishStatus
	Order  *domain.Order
	Reason string
}

type AdmissionStatus string

const (
	AdmissionSuccess  AdmissionStatus = "success"
	AdmissionWrongPIN AdmissionStatus = "wrong_pin"
	AdmissionLocked   AdmissionStatus = "locked"
)

type AdmissionResult struct {
	Status           AdmissionStatus
	Group            *domain.OrderGroup
	RemainingRetries int
	// MinutesLeft is rounded up.
	MinutesLeft int
	Message     string
}
