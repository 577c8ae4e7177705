package payment

import (
	"time"

	"github.com/google/uuid"
)

type Rail string

const (
	RailCard         Rail = "card"
	RailWallet       Rail = "wallet"
	RailBankTransfer Rail = "bank_transfer"
)

var rails = map[Rail]bool{
	RailCard:         true,
	RailWallet:       true,
	RailBankTransfer: true,
}

func ValidRail(r Rail) bool {
	return rails[r]
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// MaxAmount is the sanity ceiling on a single visit charge.
const MaxAmount = 10000

// Payment records one attempt to settle a booking. Rows are never
// deleted; the most recent row per booking is authoritative.
type Payment struct {
	ID          uuid.UUID
	BookingID   uuid.UUID // slots.id
	PatientID   uuid.UUID
	TherapistID uuid.UUID
	Amount      float64
	Currency    string
	Rail        Rail
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PendingManualReview is one row of the staff bank-transfer review queue:
// the payment joined with its slot and patient for display.
type PendingManualReview struct {
	Payment
	VisitDate    time.Time
	StartTime    string
	EndTime      string
	ServiceType  string
	PatientName  string
	PatientEmail *string
}
