package normalize

import (
	"fmt"
	"strings"
)

// Field declares one field of a payload object. Path may be dotted.
type Field struct {
	Path     string
	Kind     Kind
	Required bool
}

// Schema is the declared shape of one payload object.
type Schema []Field

// Required and Optional build fields.
func Required(path string, kind Kind) Field { return Field{Path: path, Kind: kind, Required: true} }
func Optional(path string, kind Kind) Field { return Field{Path: path, Kind: kind} }

// Violation is the first field that does not match a Schema.
type Violation struct {
	Field  string
	Reason string
}

func (v *Violation) Error() string { return v.Field + ": " + v.Reason }

// Check validates n. Required fields must be present and not null; optional fields may be
// missing or null but must have the declared kind when set.
func (s Schema) Check(n Node) *Violation {
	if n.Kind() != KindObject {
		return &Violation{Field: "$", Reason: "expected object, got " + n.Kind().String()}
	}
	for _, f := range s {
		v := n.Path(f.Path)
		switch k := v.Kind(); {
		case k <= KindNull:
			if f.Required {
				return &Violation{Field: f.Path, Reason: "missing required field"}
			}
		case k == KindObject && v.Len() == 0 && !f.Required:
			// Formatted mode emits {} for absent values.
		case k != f.Kind && !(f.Kind == KindTime && (k == KindNumber || k == KindString)):
			return &Violation{Field: f.Path, Reason: fmt.Sprintf("expected %s, got %s", f.Kind, k)}
		case f.Kind == KindTime:
			if _, ok := v.Time(utc); !ok {
				return &Violation{Field: f.Path, Reason: "unparseable date"}
			}
		}
	}
	return nil
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		mark := "?"
		if f.Required {
			mark = "!"
		}
		parts[i] = f.Path + mark + f.Kind.String()
	}
	return strings.Join(parts, " ")
}
