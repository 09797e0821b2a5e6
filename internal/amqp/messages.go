package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadboard/internal/core"
)

var ErrInvalidMessage = errors.New("invalid document message")

// DocumentChangedMessage announces a new version of the shared document.
// It carries the full snapshot so receivers never need to read the store.
type DocumentChangedMessage struct {
	DocumentID string          `json:"document_id"`
	Origin     string          `json:"origin"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

// NewDocumentChangedMessage encodes doc into a message from origin.
func NewDocumentChangedMessage(documentID, origin string, doc core.Document) (*DocumentChangedMessage, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return &DocumentChangedMessage{
		DocumentID: documentID,
		Origin:     origin,
		Timestamp:  time.Now(),
		Data:       data,
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *DocumentChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DocumentChangedMessageFromJSON parses a message and checks it has a key
// and a payload.
func DocumentChangedMessageFromJSON(data []byte) (*DocumentChangedMessage, error) {
	var msg DocumentChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.DocumentID == "" || len(msg.Data) == 0 {
		return nil, fmt.Errorf("%w: missing document id or data", ErrInvalidMessage)
	}
	return &msg, nil
}

// Document decodes and validates the carried snapshot.
func (m *DocumentChangedMessage) Document() (core.Document, error) {
	return core.DecodeDocument(m.Data)
}
