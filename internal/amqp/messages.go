package amqp

import (
	"bytes"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ChangeOp is the kind of write a ChangeMessage reports.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeMessage reports one successful write to a table. Row is the stored
// row after the write and is empty for deletes.
type ChangeMessage struct {
	Table     string         `json:"table"`
	Op        ChangeOp       `json:"op"`
	ID        int64          `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Row       map[string]any `json:"row,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewChangeMessage stamps the message with the current time.
func NewChangeMessage(table string, op ChangeOp, id int64, row map[string]any) *ChangeMessage {
	return &ChangeMessage{
		Table:     table,
		Op:        op,
		ID:        id,
		Row:       row,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message; numbers in Row stay json.Number.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return nil, err
	}
	if msg.Table == "" || msg.Op == "" {
		return nil, errors.New("change message without table or op")
	}
	return &msg, nil
}
