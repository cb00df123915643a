package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"moneymind/internal/core"
)

// Change reasons carried by LedgerChangedMessage.
const (
	ReasonMutation  = "mutation"
	ReasonRecurring = "recurring"
	ReasonSync      = "sync"
	ReasonRefresh   = "refresh"
)

// LedgerChangedMessage announces that a new ledger version was committed.
// It carries no ledger data; consumers load the snapshot by owner.
type LedgerChangedMessage struct {
	Owner     string    `json:"owner"`
	Version   int64     `json:"version"`
	Reason    string    `json:"reason"`
	Entity    string    `json:"entity,omitempty"`
	Action    string    `json:"action,omitempty"`
	Generated int       `json:"generated,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage creates a change event stamped with the current time.
func NewLedgerChangedMessage(owner string, version int64, reason string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		Owner:     owner,
		Version:   version,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// LedgerSyncMessage delivers a full ledger document written elsewhere.
type LedgerSyncMessage struct {
	Owner     string        `json:"owner"`
	Snapshot  core.Snapshot `json:"snapshot"`
	Timestamp time.Time     `json:"timestamp"`
}

func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerSyncMessageFromJSON decodes a sync delivery. The owner is mandatory.
func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Owner == "" {
		return nil, fmt.Errorf("sync message without owner")
	}
	return &msg, nil
}
