package verification

// Status is the position of a Verification in the purchase state machine.
type Status string

const (
	StatusInitiated        Status = "initiated"
	StatusReservingCredit  Status = "reserving_credit"
	StatusRequestingNumber Status = "requesting_number"
	StatusNumberAssigned   Status = "number_assigned"
	StatusPolling          Status = "polling"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
	StatusTimedOut         Status = "timed_out"
	StatusRefunded         Status = "refunded"
)

// transitions lists the allowed successors of each status. Terminal
// statuses have none; failed, cancelled and timed_out may still move to
// refunded when a charge was committed.
var transitions = map[Status][]Status{
	StatusInitiated:        {StatusReservingCredit, StatusFailed, StatusCancelled},
	StatusReservingCredit:  {StatusRequestingNumber, StatusFailed, StatusCancelled},
	StatusRequestingNumber: {StatusNumberAssigned, StatusFailed, StatusCancelled},
	StatusNumberAssigned:   {StatusPolling, StatusFailed, StatusCancelled},
	StatusPolling:          {StatusCompleted, StatusTimedOut, StatusFailed, StatusCancelled},
	StatusTimedOut:         {StatusRefunded},
	StatusFailed:           {StatusRefunded},
	StatusCancelled:        {StatusRefunded},
}

// IsValid returns true if the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusInitiated, StatusReservingCredit, StatusRequestingNumber, StatusNumberAssigned,
		StatusPolling, StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits s -> to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the purchase is still in flight.
func (s Status) IsActive() bool {
	switch s {
	case StatusInitiated, StatusReservingCredit, StatusRequestingNumber, StatusNumberAssigned, StatusPolling:
		return true
	default:
		return false
	}
}

// NeedsCompensation reports whether s is an unsuccessful outcome that must
// be refunded if a charge was committed.
func (s Status) NeedsCompensation() bool {
	return s == StatusTimedOut || s == StatusFailed || s == StatusCancelled
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}
