package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of partition keys.
const DateLayout = "2006-01-02"

// Date is a calendar date used as the partition key.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD and, for rows written by other tools,
// a full RFC3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: want %s", s, DateLayout)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Record is one row of the replicated collection.
type Record struct {
	ID           string            `json:"id"`
	PartitionKey Date              `json:"partition_key"`
	Payload      map[string]string `json:"payload,omitempty"`
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record id is empty")
	}
	if r.PartitionKey.IsZero() {
		return fmt.Errorf("record %s: partition key is empty", r.ID)
	}
	return nil
}

// EncodePayload returns the canonical JSON form stored by backends.
func (r Record) EncodePayload() (string, error) {
	if len(r.Payload) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

func DecodePayload(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var p map[string]string
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
