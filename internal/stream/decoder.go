package stream

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

// Mode is the decoding mode a Decoder committed to.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeJSON
	ModeCSV
)

func (m Mode) String() string {
	switch m {
	case ModeJSON:
		return "json"
	case ModeCSV:
		return "csv"
	}
	return "unknown"
}

const fieldSeparator = ","

// Decoder turns lines into Records. The first non-empty record commits the
// decoder to JSON or CSV for the rest of the connection; later lines are not
// re-classified.
type Decoder struct {
	mode   Mode
	prefix string
}

type DecoderOption func(*Decoder)

// WithPrefix makes the decoder accept only lines starting with prefix.
// The prefix is stripped before decoding; other lines decode to empty records.
func WithPrefix(prefix string) DecoderOption {
	return func(d *Decoder) { d.prefix = prefix }
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) Mode() Mode { return d.mode }

// Reset forgets the committed mode.
func (d *Decoder) Reset() { d.mode = ModeUnknown }

// Decode classifies and converts line. Malformed input yields an empty
// Record; it is never an error.
func (d *Decoder) Decode(line string) Record {
	if d.prefix != "" {
		rest, ok := strings.CutPrefix(line, d.prefix)
		if !ok {
			return Record{}
		}
		line = rest
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}
	}

	switch d.mode {
	case ModeJSON:
		rec, _ := decodeObject(line)
		return rec
	case ModeCSV:
		return decodeCSV(line)
	}

	if rec, ok := decodeObject(line); ok {
		if !rec.IsEmpty() {
			d.mode = ModeJSON
		}
		return rec
	}
	rec := decodeCSV(line)
	if !rec.IsEmpty() {
		d.mode = ModeCSV
	}
	return rec
}

var errNotObject = errors.New("not a JSON object")

// decodeObject parses line as a single JSON object, keeping key order.
// Repeated keys keep their first position and their last value.
func decodeObject(line string) (Record, bool) {
	if line[0] != '{' {
		return Record{}, false
	}
	rec, err := parseObject(json.NewDecoder(strings.NewReader(line)))
	if err != nil {
		return Record{}, false
	}
	return rec, true
}

func parseObject(dec *json.Decoder) (Record, error) {
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return Record{}, err
	}
	if tok != json.Delim('{') {
		return Record{}, errNotObject
	}

	var rec Record
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, errNotObject
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, err
		}
		v := jsonValue(raw)
		if i, dup := seen[key]; dup {
			rec.Fields[i].Value = v
			continue
		}
		seen[key] = len(rec.Fields)
		rec.Fields = append(rec.Fields, Field{Key: Name(key), Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Record{}, errNotObject
	}
	return rec, nil
}

func jsonValue(raw json.RawMessage) Value {
	if len(raw) == 0 {
		return Text("")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Text(string(raw))
		}
		return coerce(s)
	case '[':
		var pair []float64
		if err := json.Unmarshal(raw, &pair); err == nil && len(pair) == 2 {
			return Pair(pair[0], pair[1])
		}
		return Text(string(raw))
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
			return Number(f)
		}
	}
	return Text(string(raw))
}

func decodeCSV(line string) Record {
	parts := strings.Split(line, fieldSeparator)
	rec := Record{Fields: make([]Field, len(parts))}
	for i, p := range parts {
		rec.Fields[i] = Field{Key: Index(i), Value: coerce(p)}
	}
	return rec
}

// coerce returns a number when s parses as one and the trimmed text otherwise.
func coerce(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Text(s)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Number(f)
	}
	return Text(s)
}
