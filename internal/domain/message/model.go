package message

import "time"

// Message is a group message captured by the fetch mode.
type Message struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"groupId"`
	SenderPhone string    `json:"senderPhone,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text,omitempty"`
	Type        string    `json:"type"`
}
