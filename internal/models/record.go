package models

import (
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Value is either a single string or a list of strings.
type Value struct {
	text   string
	list   []string
	isList bool
}

func Text(s string) Value { return Value{text: s} }

func List(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{list: cp, isList: true}
}

func (v Value) IsList() bool { return v.isList }

// Strings returns the list items, or the text as a one-element slice.
func (v Value) Strings() []string {
	if v.isList {
		out := make([]string, len(v.list))
		copy(out, v.list)
		return out
	}
	return []string{v.text}
}

// Text returns the scalar text, or the list items joined by ", ".
func (v Value) Text() string {
	if v.isList {
		return strings.Join(v.list, ", ")
	}
	return v.text
}

// IsEmpty reports a blank string or a list without non-blank items.
func (v Value) IsEmpty() bool {
	if !v.isList {
		return strings.TrimSpace(v.text) == ""
	}
	for _, item := range v.list {
		if strings.TrimSpace(item) != "" {
			return false
		}
	}
	return true
}

func (v Value) Equal(o Value) bool {
	if v.isList != o.isList {
		return false
	}
	if !v.isList {
		return v.text == o.text
	}
	if len(v.list) != len(o.list) {
		return false
	}
	for i := range v.list {
		if v.list[i] != o.list[i] {
			return false
		}
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isList {
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return json.Marshal(v.text)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Text(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("record value must be a string or list of strings")
	}
	*v = List(items...)
	return nil
}

// Record is the ordered key to value output of normalization.
type Record struct {
	m *orderedmap.OrderedMap[string, Value]
}

func NewRecord() *Record {
	return &Record{m: orderedmap.New[string, Value]()}
}

func (r *Record) ensure() {
	if r.m == nil {
		r.m = orderedmap.New[string, Value]()
	}
}

// Set stores the value. An existing key keeps its position.
func (r *Record) Set(key string, v Value) {
	r.ensure()
	r.m.Set(key, v)
}

func (r *Record) Get(key string) (Value, bool) {
	if r == nil || r.m == nil {
		return Value{}, false
	}
	return r.m.Get(key)
}

func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

func (r *Record) Delete(key string) {
	if r == nil || r.m == nil {
		return
	}
	r.m.Delete(key)
}

func (r *Record) Len() int {
	if r == nil || r.m == nil {
		return 0
	}
	return r.m.Len()
}

func (r *Record) Keys() []string {
	if r == nil || r.m == nil {
		return nil
	}
	keys := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each visits entries in insertion order until fn returns false.
func (r *Record) Each(fn func(key string, v Value) bool) {
	if r == nil || r.m == nil {
		return
	}
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

func (r *Record) Clone() *Record {
	out := NewRecord()
	r.Each(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Equal compares keys, order and values.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	ak, bk := r.Keys(), o.Keys()
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
		av, _ := r.Get(ak[i])
		bv, _ := o.Get(bk[i])
		if !av.Equal(bv) {
			return false
		}
	}
	return true
}

func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil || r.m == nil {
		return []byte("{}"), nil
	}
	return r.m.MarshalJSON()
}

func (r *Record) UnmarshalJSON(b []byte) error {
	r.ensure()
	return r.m.UnmarshalJSON(b)
}

func (r *Record) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("record(%d keys)", r.Len())
	}
	return string(b)
}
