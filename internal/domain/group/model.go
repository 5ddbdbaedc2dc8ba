package group

import "errors"

// Roster is a live snapshot of one WhatsApp group taken from the messaging client.
type Roster struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ParentID     string        `json:"parentId,omitempty"`
	IsCommunity  bool          `json:"isCommunity"`
	Participants []Participant `json:"participants,omitempty"`
}

// Participant carries the phone and admin flag of a group member.
type Participant struct {
	JID     string `json:"id"`
	Phone   string `json:"phone,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

// HasParent reports whether the group is linked to a community.
func (r Roster) HasParent() bool {
	return r.ParentID != ""
}

// AddStatus is the per-phone outcome of an add attempt.
type AddStatus string

const (
	AddStatusAdded          AddStatus = "added"
	AddStatusInvited        AddStatus = "invited"
	AddStatusAlreadyPresent AddStatus = "already_present"
	AddStatusFailed         AddStatus = "failed"
)

// AddResult is what the messaging client reports for one phone.
type AddResult struct {
	Phone  string    `json:"phone"`
	Status AddStatus `json:"status"`
	Code   int       `json:"code,omitempty"`
}

// Succeeded reports whether the phone ended up in the group or holds a pending invite.
func (r AddResult) Succeeded() bool {
	switch r.Status {
	case AddStatusAdded, AddStatusInvited, AddStatusAlreadyPresent:
		return true
	default:
		return false
	}
}

var (
	ErrGroupNotFound = errors.New("group not found")
	// ErrNotInGroup means the bot account no longer participates in the group.
	ErrNotInGroup = errors.New("bot is not a participant of the group")
)

// FindParticipant returns the participant whose phone matches, using match to compare phones.
func (r Roster) FindParticipant(match func(phone string) bool) (Participant, bool) {
	for _, p := range r.Participants {
		if p.Phone != "" && match(p.Phone) {
			return p, true
		}
	}
	return Participant{}, false
}
