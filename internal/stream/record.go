package stream

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FieldKey identifies a field in a Record: a name for JSON records, a
// 0-based position for CSV records.
type FieldKey struct {
	name  string
	index int
	named bool
}

func Name(s string) FieldKey { return FieldKey{name: s, named: true} }
func Index(i int) FieldKey   { return FieldKey{index: i} }

func (k FieldKey) IsName() bool { return k.named }

// Name returns the key name; it is empty for positional keys.
func (k FieldKey) Name() string { return k.name }

// Index returns the position; it is -1 for named keys.
func (k FieldKey) Index() int {
	if k.named {
		return -1
	}
	return k.index
}

func (k FieldKey) String() string {
	if k.named {
		return k.name
	}
	return strconv.Itoa(k.index)
}

type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindPair
)

// Value is a scalar field value. Numbers and 2-element numeric arrays are
// kept as floats, everything else as its raw text.
type Value struct {
	Kind Kind
	Num  float64
	Pair [2]float64
	Text string
}

func Number(v float64) Value   { return Value{Kind: KindNumber, Num: v} }
func Pair(x, y float64) Value  { return Value{Kind: KindPair, Pair: [2]float64{x, y}} }
func Text(s string) Value      { return Value{Kind: KindText, Text: s} }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsPair() bool   { return v.Kind == KindPair }

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindPair:
		return "[" + strconv.FormatFloat(v.Pair[0], 'g', -1, 64) + "," + strconv.FormatFloat(v.Pair[1], 'g', -1, 64) + "]"
	}
	return v.Text
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindPair:
		return json.Marshal(v.Pair)
	}
	return json.Marshal(v.Text)
}

type Field struct {
	Key   FieldKey
	Value Value
}

// Record is a decoded line. Fields keep the order in which they appeared.
type Record struct {
	Fields []Field
}

func (r Record) Len() int      { return len(r.Fields) }
func (r Record) IsEmpty() bool { return len(r.Fields) == 0 }

func (r Record) Get(key FieldKey) (Value, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (r Record) Keys() []FieldKey {
	keys := make([]FieldKey, len(r.Fields))
	for i, f := range r.Fields {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON writes the record as a JSON object in field order.
// Positional keys become their decimal index.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key.String())
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
