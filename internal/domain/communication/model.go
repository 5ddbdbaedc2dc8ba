package communication

import "time"

const (
	StatusWarned   = "warned"
	StatusRewarned = "rewarned"
)

// Record tracks the last warning sent to a phone for a given removal reason.
type Record struct {
	Phone     string    `json:"phone"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}
