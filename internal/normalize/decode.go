package normalize

import (
	"fmt"
	"reflect"
	"time"

	"github.com/guregu/null/v6"
	"github.com/mitchellh/mapstructure"
)

var (
	nullFloatType  = reflect.TypeOf(null.Float{})
	nullIntType    = reflect.TypeOf(null.Int{})
	nullStringType = reflect.TypeOf(null.String{})
	nullBoolType   = reflect.TypeOf(null.Bool{})
	nullTimeType   = reflect.TypeOf(null.Time{})
	timeType       = reflect.TypeOf(time.Time{})
)

var utc = time.UTC

func isNullType(t reflect.Type) bool {
	switch t {
	case nullFloatType, nullIntType, nullStringType, nullBoolType, nullTimeType:
		return true
	}
	return false
}

// unwrapHook strips formatted wrappers. An empty object stands for an absent value.
func unwrapHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	if raw, ok := m["raw"]; ok {
		return raw, nil
	}
	if len(m) == 0 && isNullType(to) {
		return reflect.Zero(to).Interface(), nil
	}
	return data, nil
}

// nullHook converts JSON scalars into null columns and instants. Wrong kinds are errors so
// the row is reported as malformed rather than silently blanked.
func nullHook(loc *time.Location) mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if reflect.TypeOf(data) == to {
			return data, nil
		}
		n := NodeOf(data)
		switch to {
		case nullFloatType:
			f, ok := n.Float()
			if !ok {
				return nil, fmt.Errorf("expected number, got %s", n.Kind())
			}
			return null.FloatFrom(f), nil
		case nullIntType:
			i, ok := n.Int()
			if !ok {
				return nil, fmt.Errorf("expected integer, got %v", data)
			}
			return null.IntFrom(i), nil
		case nullStringType:
			s, ok := n.Str()
			if !ok {
				return nil, fmt.Errorf("expected string, got %s", n.Kind())
			}
			return null.NewString(s, s != ""), nil
		case nullBoolType:
			b, ok := n.Bool()
			if !ok {
				return nil, fmt.Errorf("expected bool, got %s", n.Kind())
			}
			return null.BoolFrom(b), nil
		case nullTimeType, timeType:
			t, ok := n.Time(loc)
			if !ok {
				return nil, fmt.Errorf("expected date, got %v", data)
			}
			if to == timeType {
				return t, nil
			}
			return null.TimeFrom(t), nil
		}
		return data, nil
	}
}

// decodeNode extracts n into the struct pointed to by out using mapstructure tags.
func decodeNode(n Node, out any, loc *time.Location) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(unwrapHook, nullHook(loc)),
		Result:     out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(n.v); err != nil {
		return fmt.Errorf("decoding %T: %w", out, err)
	}
	return nil
}
