// Package events ingests error events: validates the payload, folds the
// event into an issue by fingerprint, and updates tag aggregates.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPayload = errors.New("invalid event payload")
	ErrTooOld         = errors.New("event timestamp too far in the past")
)

// EventInput is the wire payload accepted by the store endpoint.
type EventInput struct {
	EventID   string            `json:"event_id"`
	Message   string            `json:"message" validate:"required,max=8192"`
	Platform  string            `json:"platform" validate:"required,max=64"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags" validate:"max=50,dive,keys,max=32,endkeys,max=200"`
	User      *UserContext      `json:"user"`
}

// UserContext is the structured user attached to an event. The id field
// arrives as either a JSON number or a string depending on the SDK, so
// it gets a custom decoder.
type UserContext struct {
	ID        string
	Username  string
	Email     string
	IPAddress string
}

func (u *UserContext) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        any    `json:"id"`
		Username  string `json:"username"`
		Email     string `json:"email"`
		IPAddress string `json:"ip_address"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch id := raw.ID.(type) {
	case nil:
	case string:
		u.ID = id
	case json.Number:
		u.ID = id.String()
	default:
		return fmt.Errorf("user id must be a string or number, got %T", raw.ID)
	}
	u.Username = raw.Username
	u.Email = raw.Email
	u.IPAddress = raw.IPAddress
	return nil
}

// Event is a stored event row.
type Event struct {
	ID        string
	ULID      string
	GroupID   string
	ProjectID string
	Message   string
	Platform  string
	Timestamp time.Time
	Received  time.Time
}
