package action

import "fmt"

// Type identifies what the worker must do with a queued record.
type Type string

const (
	TypeAdd    Type = "add"
	TypeRemove Type = "remove"
)

// Record is the payload stored in the durable action queue.
type Record struct {
	Type           Type    `json:"type" validate:"required,oneof=add remove"`
	RegistrationID *string `json:"registration_id"`
	GroupID        string  `json:"group_id" validate:"required"`
	Phone          string  `json:"phone" validate:"omitempty,numeric"`
	Reason         *string `json:"reason"`
}

// Key is the deduplication identity of a Record. Reason is deliberately left out.
type Key struct {
	Type           Type
	RegistrationID string
	GroupID        string
	Phone          string
}

// Key returns the identity used by producers to skip duplicates.
func (r Record) Key() Key {
	k := Key{Type: r.Type, GroupID: r.GroupID, Phone: r.Phone}
	if r.RegistrationID != nil {
		k.RegistrationID = *r.RegistrationID
	}
	return k
}

// ReasonText returns the reason or an empty string.
func (r Record) ReasonText() string {
	if r.Reason == nil {
		return ""
	}
	return *r.Reason
}

// Registration returns the registration id or an empty string.
func (r Record) Registration() string {
	if r.RegistrationID == nil {
		return ""
	}
	return *r.RegistrationID
}

func (r Record) String() string {
	return fmt.Sprintf("%s group=%s phone=%s registration=%s reason=%q", r.Type, r.GroupID, r.Phone, r.Registration(), r.ReasonText())
}

// StringPtr is a small helper for the nullable fields.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
