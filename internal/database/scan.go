package database

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayouts are the textual forms SQLite hands back for DATETIME columns.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ScanTime returns a scanner that fills t from a timestamp column of either
// driver. go-sql-driver/mysql yields time.Time (parseTime=true) while SQLite
// may yield text. The result is always UTC.
func ScanTime(t *time.Time) sql.Scanner {
	return timeScanner{t: t}
}

type timeScanner struct {
	t *time.Time
}

// Scan implements sql.Scanner.
func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		*s.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (s timeScanner) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized time format %q", v)
}

// Timestamp normalizes t for binding: UTC, truncated to the microsecond
// precision of DATETIME(6).
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
