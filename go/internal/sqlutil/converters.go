package sqlutil

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// ToSqlTime converts a Go time pointer to sql.NullTime
func ToSqlTime(val *time.Time) sql.NullTime {
	if val == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *val, Valid: true}
}

// ToSqlTimeValue converts a Go time to sql.NullTime, treating the zero time as NULL
func ToSqlTimeValue(val time.Time) sql.NullTime {
	if val.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: val, Valid: true}
}

// FromSqlTime converts sql.NullTime to Go time pointer
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}

// ToNullRawMessage wraps JSON for a nullable JSONB column
func ToNullRawMessage(val json.RawMessage) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: val, Valid: len(val) > 0}
}

// FromNullRawMessage returns the JSON held by a nullable JSONB column, or nil
func FromNullRawMessage(val pqtype.NullRawMessage) json.RawMessage {
	if !val.Valid {
		return nil
	}
	return val.RawMessage
}
