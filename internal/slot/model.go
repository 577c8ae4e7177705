package slot

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable      Status = "available"
	StatusPendingPayment Status = "pending_payment"
	StatusBooked         Status = "booked"
	StatusCanceled       Status = "canceled"
	StatusNoShow         Status = "no_show"
)

// ActiveStatuses are the states in which a slot occupies its time window.
// Canceled and no-show slots do not block overlapping creation.
var ActiveStatuses = []Status{StatusAvailable, StatusPendingPayment, StatusBooked}

type ServiceType string

const (
	ServiceInitialAssessment ServiceType = "initial_assessment"
	ServiceTelehealthConsult ServiceType = "telehealth_consult"
	ServiceDryNeedling       ServiceType = "dry_needling"
	ServiceFullTelehealth    ServiceType = "full_telehealth"
)

var serviceTypes = map[ServiceType]bool{
	ServiceInitialAssessment: true,
	ServiceTelehealthConsult: true,
	ServiceDryNeedling:       true,
	ServiceFullTelehealth:    true,
}

func ValidServiceType(s ServiceType) bool {
	return serviceTypes[s]
}

// Slot is one bookable therapist time window for one service type on one
// date. Start and end are zero-padded "HH:MM" clock strings scoped to
// VisitDate; zero-padding keeps lexicographic and chronological order
// identical, in Go and in SQL.
type Slot struct {
	ID               uuid.UUID
	TherapistID      uuid.UUID
	VisitDate        time.Time // date only, midnight UTC
	StartTime        string    // "HH:MM"
	EndTime          string    // "HH:MM"
	ServiceType      ServiceType
	Status           Status
	PatientID        *uuid.UUID
	PendingStartedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Overlaps reports whether two [start, end) clock ranges intersect.
func Overlaps(startA, endA, startB, endB string) bool {
	return startA < endB && startB < endA
}
