package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidRecords is returned for time-series input that cannot be
// reduced to a series.
var ErrInvalidRecords = errors.New("invalid time-series records")

// MinRecordFields is the number of fields a time-series record must have.
// The third field carries the metric value.
const MinRecordFields = 3

// Field is one key/value pair of a record, in input order.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Record is a JSON object with its key order preserved.
type Record []Field

// UnmarshalJSON decodes an object keeping key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: record is not an object", ErrInvalidRecords)
	}

	var fields Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected token %v", ErrInvalidRecords, tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: field %q: %w", ErrInvalidRecords, key, err)
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = fields
	return nil
}

// MarshalJSON encodes the record with its original key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeRecords reads a JSON array of objects.
func DecodeRecords(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecords, err)
	}
	return records, nil
}

// Series is the third field of every record.
type Series struct {
	// Key is the third field's name in the first record.
	Key    string
	Values []json.RawMessage
}

// ExtractSeries takes the third field of each record, in order.
func ExtractSeries(records []Record) (Series, error) {
	if len(records) == 0 {
		return Series{}, fmt.Errorf("%w: no records", ErrInvalidRecords)
	}
	s := Series{Values: make([]json.RawMessage, 0, len(records))}
	for i, rec := range records {
		if len(rec) < MinRecordFields {
			return Series{}, fmt.Errorf("%w: record %d has %d fields, need at least %d",
				ErrInvalidRecords, i, len(rec), MinRecordFields)
		}
		if i == 0 {
			s.Key = rec[MinRecordFields-1].Key
		}
		s.Values = append(s.Values, rec[MinRecordFields-1].Value)
	}
	return s, nil
}

// Text renders the series as the seed message for a time-series session.
func (s Series) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Metric %q, %d values in time order:\n[", s.Key, len(s.Values))
	for i, v := range s.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Write(bytes.TrimSpace(v))
	}
	b.WriteString("]")
	return b.String()
}
