package services

import (
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/member"
)

// StatusResolver derives membership status and age flags from a member row.
type StatusResolver struct {
	JuniorThresholdAge int
	AdultAge           int
	Now                func() time.Time
}

func NewStatusResolver(juniorThresholdAge, adultAge int) *StatusResolver {
	return &StatusResolver{JuniorThresholdAge: juniorThresholdAge, AdultAge: adultAge, Now: time.Now}
}

func (r *StatusResolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Resolve is pure given Now. The under and near windows both include age exactly JuniorThresholdAge.
func (r *StatusResolver) Resolve(rec member.Record) member.Resolved {
	now := r.now()
	out := member.Resolved{RegistrationID: rec.RegistrationID, Status: member.StatusInactive}
	if rec.Transferred || (rec.MaxExpiration != nil && rec.MaxExpiration.After(now)) {
		out.Status = member.StatusActive
	}
	if rec.BirthDate == nil {
		return out
	}
	birth := *rec.BirthDate
	underCutoff := now.AddDate(-(r.JuniorThresholdAge + 1), 0, 0)
	nearCutoff := now.AddDate(-r.JuniorThresholdAge, 0, 0)
	adultCutoff := now.AddDate(-r.AdultAge, 0, 0)

	out.JuniorUnder = birth.After(underCutoff)
	out.JuniorNear = !birth.After(nearCutoff) && birth.After(adultCutoff)
	out.Adult = !birth.After(adultCutoff)
	return out
}
