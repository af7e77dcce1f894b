package main

import "time"

// GraduateType classifies a participant with respect to fee liability.
type GraduateType string

const (
	GraduateTypeGraduate    GraduateType = "graduate"
	GraduateTypeTeacher     GraduateType = "teacher"
	GraduateTypeNonGraduate GraduateType = "non_graduate"
	GraduateTypeOther       GraduateType = "other"
)

// PaymentStatus is the review state of a payment submission. The zero value
// means the user never submitted anything for this registration.
type PaymentStatus string

const (
	PaymentStatusNone      PaymentStatus = ""
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusDeclined  PaymentStatus = "declined"
)

// Registration is one (user, city) participation record.
type Registration struct {
	UserID           int    // UserID is the Telegram identifier, stable across renames.
	Username         string // Username is the Telegram @name, display only.
	FullName         string // FullName is the validated "Фамилия Имя" string.
	GraduationYear   int    // GraduationYear is 0 for non-graduates.
	ClassLetter      string // ClassLetter is one Cyrillic letter, empty when the type has no class.
	TargetCity       string // TargetCity names the event location the user registered for.
	GraduateType     GraduateType
	PaymentStatus    PaymentStatus
	PaymentAmount    int // PaymentAmount is the cumulative confirmed total.
	RegularAmount    int // snapshot at submission time
	DiscountedAmount int
	FormulaAmount    int
	ProofFileID      string // opaque attachment reference, never inspected
	PaymentComment   string
	PaymentAt        *time.Time // submission time
	VerifiedAt       *time.Time // admin confirm/decline time
	Visited          bool
	CreatedAt        time.Time
}

// PaymentDue holds the amounts computed for a registration at presentation time.
type PaymentDue struct {
	Regular    int
	Discount   int
	Discounted int
	Formula    int
}

// PaymentEntry is one row of the append-only payment history.
type PaymentEntry struct {
	UserID     int
	City       string
	Amount     int
	TotalAfter int
	CreatedAt  time.Time
}

// ArchivedRegistration is a Registration moved to the archive on cancellation.
type ArchivedRegistration struct {
	Registration
	DeletedAt      time.Time
	DeletionReason string
}

// ReviewRef links a forwarded proof message in the organizer chat back to the
// pending payment submission it belongs to.
type ReviewRef struct {
	Token      string
	AdminMsgID int
	UserID     int
	City       string
	CreatedAt  time.Time
}

// Feedback is one free-standing survey submission; users may submit several.
type Feedback struct {
	UserID        int
	Username      string
	City          string
	VenueRating   int // 1..5
	ProgramRating int
	OverallRating int
	Comment       string
	CreatedAt     time.Time
}

// CityStat is an aggregate row for the /stats command.
type CityStat struct {
	City          string
	Registrations int
	Paid          int
	ConfirmedSum  int
}
