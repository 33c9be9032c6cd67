package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// Kind is the dynamic type of a Node.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	// KindTime is a schema-only kind: epoch seconds or a YYYY-MM-DD string.
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Node is a read-only view of a decoded JSON value. Lookups on the wrong kind yield a
// missing node instead of panicking, so chains like n.Get("a").Index(0).Get("b") are safe.
//
// Formatted upstream values ({"raw": 1.5, "fmt": "1.50"}) are unwrapped transparently.
type Node struct {
	v       any
	present bool
}

// Parse decodes a JSON payload.
func Parse(b []byte) (Node, error) {
	var v any
	if err := json.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return Node{}, fmt.Errorf("decoding json: %w", err)
	}
	return Node{v: v, present: true}, nil
}

// NodeOf wraps an already decoded value.
func NodeOf(v any) Node { return Node{v: v, present: true} }

func (n Node) unwrapped() any {
	if m, ok := n.v.(map[string]any); ok {
		if raw, ok := m["raw"]; ok {
			return raw
		}
	}
	return n.v
}

func (n Node) Kind() Kind {
	if !n.present {
		return KindMissing
	}
	switch n.unwrapped().(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindMissing
	}
}

// Exists reports whether the node is present and not null.
func (n Node) Exists() bool { return n.Kind() > KindNull }

// Get walks object keys.
func (n Node) Get(path ...string) Node {
	cur := n
	for _, key := range path {
		m, ok := cur.v.(map[string]any)
		if !ok {
			return Node{}
		}
		v, ok := m[key]
		if !ok {
			return Node{}
		}
		cur = Node{v: v, present: true}
	}
	return cur
}

// Path is Get with a dotted path.
func (n Node) Path(dotted string) Node { return n.Get(strings.Split(dotted, ".")...) }

func (n Node) Index(i int) Node {
	a, ok := n.v.([]any)
	if !ok || i < 0 || i >= len(a) {
		return Node{}
	}
	return Node{v: a[i], present: true}
}

func (n Node) Len() int {
	switch v := n.v.(type) {
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	}
	return 0
}

// Items returns the elements of an array node.
func (n Node) Items() []Node {
	a, _ := n.v.([]any)
	out := make([]Node, len(a))
	for i, v := range a {
		out[i] = Node{v: v, present: true}
	}
	return out
}

// Keys returns the sorted keys of an object node.
func (n Node) Keys() []string {
	m, _ := n.v.(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Value returns the decoded value with formatted wrappers removed at every level.
func (n Node) Value() any { return unwrapAll(n.v) }

func unwrapAll(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if raw, ok := t["raw"]; ok {
			return unwrapAll(raw)
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = unwrapAll(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = unwrapAll(e)
		}
		return out
	}
	return v
}

func (n Node) Float() (float64, bool) {
	f, ok := n.unwrapped().(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int accepts integral numbers only.
func (n Node) Int() (int64, bool) {
	f, ok := n.Float()
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func (n Node) Str() (string, bool) {
	s, ok := n.unwrapped().(string)
	return s, ok
}

func (n Node) Bool() (bool, bool) {
	b, ok := n.unwrapped().(bool)
	return b, ok
}

// Time reads epoch seconds or a YYYY-MM-DD date, localised to loc.
func (n Node) Time(loc *time.Location) (time.Time, bool) {
	if secs, ok := n.Int(); ok {
		return time.Unix(secs, 0).In(loc), true
	}
	if s, ok := n.Str(); ok {
		if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

func (n Node) NullFloat() null.Float {
	f, ok := n.Float()
	return null.NewFloat(f, ok)
}

func (n Node) NullInt() null.Int {
	i, ok := n.Int()
	return null.NewInt(i, ok)
}

func (n Node) NullString() null.String {
	s, ok := n.Str()
	return null.NewString(s, ok && s != "")
}

func (n Node) NullBool() null.Bool {
	b, ok := n.Bool()
	return null.NewBool(b, ok)
}

func (n Node) NullTime(loc *time.Location) null.Time {
	t, ok := n.Time(loc)
	return null.NewTime(t, ok)
}
