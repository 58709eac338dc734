package notification

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusNew         Status = "New"
	StatusReadyToSend Status = "ReadyToSend"
	StatusSent        Status = "Sent"
	StatusError       Status = "Error"
)

type Data map[string]string

func (d Data) Value() (driver.Value, error) {
	if d == nil {
		return json.Marshal(Data{})
	}
	return json.Marshal(d)
}

func (d *Data) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// Request is one outbound notification. Rows are written inside the
// business transaction that triggered them, so an aborted settlement never
// leaves an orphan notification.
type Request struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	EventName   string    `db:"event_name" json:"event_name"`
	Data        Data      `db:"data" json:"data"`
	Status      Status    `db:"status" json:"status"`
	RetryCount  int       `db:"retry_count" json:"retry_count"`
	ErrorReason *string   `db:"error_reason" json:"error_reason,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
