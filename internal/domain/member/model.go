package member

import "time"

// Status is the membership standing derived from payment and transfer data.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Record mirrors one registration as stored in the member database. The engine never writes it.
type Record struct {
	RegistrationID string
	Phones         []string
	MaxExpiration  *time.Time
	Transferred    bool
	BirthDate      *time.Time
}

// Resolved is a Record after status and age flags have been computed.
type Resolved struct {
	RegistrationID string
	Status         Status
	JuniorUnder    bool
	JuniorNear     bool
	Adult          bool
}

// Classified is the outcome of looking a phone up in the member index.
type Classified struct {
	Found          bool
	Phone          string
	RegistrationID string
	Status         Status
	JuniorUnder    bool
	JuniorNear     bool
	Adult          bool
}

// AgeAmbiguous reports whether both junior windows matched, which exempts the member from age rules.
func (c Classified) AgeAmbiguous() bool {
	return c.JuniorUnder && c.JuniorNear
}

// AgeExempt reports whether age-based rules must be skipped for this member.
func (c Classified) AgeExempt() bool {
	return c.Adult || c.AgeAmbiguous()
}
