package models

import "time"

// Message is one entry in a chat transcript. isResponse distinguishes
// assistant replies from user messages.
type Message struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsResponse bool      `json:"isResponse"`
}
