package events

// EventType represents the type of an event in the system.
type EventType string

// Event type constants
const (
	EventTypeDepositApplied  EventType = "Deposit.Applied"
	EventTypeDepositRejected EventType = "Deposit.Rejected"

	EventTypeDistributionApplied EventType = "Distribution.Applied"
	EventTypeDistributionFailed  EventType = "Distribution.Failed"

	EventTypeTransferCompleted EventType = "Transfer.Completed"
	EventTypeReversalCompleted EventType = "Reversal.Completed"
	EventTypePayoutCompleted   EventType = "Payout.Completed"
)

func (t EventType) String() string { return string(t) }

// Event is implemented by everything published on the bus.
type Event interface {
	Type() string
}

// EventTypes maps each type to a constructor so transports can decode payloads.
var EventTypes = map[string]func() Event{
	EventTypeDepositApplied.String():      func() Event { return &DepositApplied{} },
	EventTypeDepositRejected.String():     func() Event { return &DepositRejected{} },
	EventTypeDistributionApplied.String(): func() Event { return &DistributionApplied{} },
	EventTypeDistributionFailed.String():  func() Event { return &DistributionFailed{} },
	EventTypeTransferCompleted.String():   func() Event { return &TransferCompleted{} },
	EventTypeReversalCompleted.String():   func() Event { return &ReversalCompleted{} },
	EventTypePayoutCompleted.String():     func() Event { return &PayoutCompleted{} },
}
