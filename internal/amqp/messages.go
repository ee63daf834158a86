package amqp

import (
	"encoding/json"
	"time"

	"bilancio/internal/core"
)

// TransactionSyncMessage announces a persisted transaction. It carries only
// the ID; consumers fetch the full row from the database.
type TransactionSyncMessage struct {
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(transactionID string) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AlertMessage is the wire form of an alert on its way to the notification
// dispatcher.
type AlertMessage struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	SubMessage string    `json:"sub_message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewAlertMessage(alert core.Alert) *AlertMessage {
	return &AlertMessage{
		Kind:       string(alert.Kind),
		Message:    alert.Message,
		SubMessage: alert.SubMessage,
		Timestamp:  time.Now(),
	}
}

func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
