package queue

import "encoding/json"

// MessageVersion is the current send-job payload version.
const MessageVersion = 1

// Message is a deferred send job: email the artifact link for one document.
type Message struct {
	TenantSlug     string `json:"tenantSlug"`
	DocumentNumber string `json:"documentNumber"`
	Recipient      string `json:"recipient"`
	RequestID      string `json:"requestId"`
	EnqueuedAt     string `json:"enqueuedAt"`
	Version        int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
