package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind is the type of value held by an Arg.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindBool:
		return "boolean"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// An Arg is a single scalar argument to a job: a string, an integer,
// a boolean, or null. The zero Arg is null.
type Arg struct {
	kind Kind
	s    string
	i    int64
	b    bool
}

// String returns a string Arg.
func String(s string) Arg { return Arg{kind: KindString, s: s} }

// Int returns an integer Arg.
func Int(i int64) Arg { return Arg{kind: KindInt, i: i} }

// Bool returns a boolean Arg.
func Bool(b bool) Arg { return Arg{kind: KindBool, b: b} }

// Null returns a null Arg.
func Null() Arg { return Arg{} }

func (a Arg) Kind() Kind { return a.kind }

// Interface returns the Go value held by a: string, int64, bool or nil.
func (a Arg) Interface() interface{} {
	switch a.kind {
	case KindString:
		return a.s
	case KindInt:
		return a.i
	case KindBool:
		return a.b
	default:
		return nil
	}
}

func (a Arg) String() string {
	switch a.kind {
	case KindString:
		return strconv.Quote(a.s)
	case KindInt:
		return strconv.FormatInt(a.i, 10)
	case KindBool:
		return strconv.FormatBool(a.b)
	default:
		return "null"
	}
}

func (a Arg) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case KindString:
		return json.Marshal(a.s)
	case KindInt:
		return []byte(strconv.FormatInt(a.i, 10)), nil
	case KindBool:
		return []byte(strconv.FormatBool(a.b)), nil
	case KindNull:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("models: cannot marshal arg of kind %s", a.kind)
	}
}

func (a *Arg) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("models: empty arg")
	}
	switch b[0] {
	case 'n':
		if string(b) != "null" {
			return fmt.Errorf("models: invalid arg %s", b)
		}
		*a = Null()
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*a = Bool(v)
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*a = String(v)
	case '{', '[':
		return fmt.Errorf("models: args must be scalars, got %s", b)
	default:
		i, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("models: numeric args must be integers, got %s", b)
		}
		*a = Int(i)
	}
	return nil
}

// Args is the ordered argument list passed to a job when it runs. It is
// stored as a JSON array.
type Args []Arg

// NewArgs converts Go values to Args. Supported types are string, bool, nil
// and every integer type.
func NewArgs(values ...interface{}) (Args, error) {
	args := make(Args, len(values))
	for i, v := range values {
		switch tv := v.(type) {
		case nil:
			args[i] = Null()
		case Arg:
			args[i] = tv
		case string:
			args[i] = String(tv)
		case bool:
			args[i] = Bool(tv)
		case int:
			args[i] = Int(int64(tv))
		case int8:
			args[i] = Int(int64(tv))
		case int16:
			args[i] = Int(int64(tv))
		case int32:
			args[i] = Int(int64(tv))
		case int64:
			args[i] = Int(tv)
		case uint8:
			args[i] = Int(int64(tv))
		case uint16:
			args[i] = Int(int64(tv))
		case uint32:
			args[i] = Int(int64(tv))
		default:
			return nil, fmt.Errorf("models: unsupported arg type %T at position %d", v, i)
		}
	}
	return args, nil
}

func (a Args) at(i int, k Kind) (Arg, error) {
	if i < 0 || i >= len(a) {
		return Arg{}, fmt.Errorf("models: no arg at position %d (have %d)", i, len(a))
	}
	if a[i].kind != k {
		return Arg{}, fmt.Errorf("models: arg %d is %s, not %s", i, a[i].kind, k)
	}
	return a[i], nil
}

// String returns the string at position i.
func (a Args) String(i int) (string, error) {
	arg, err := a.at(i, KindString)
	return arg.s, err
}

// Int returns the integer at position i.
func (a Args) Int(i int) (int64, error) {
	arg, err := a.at(i, KindInt)
	return arg.i, err
}

// Bool returns the boolean at position i.
func (a Args) Bool(i int) (bool, error) {
	arg, err := a.at(i, KindBool)
	return arg.b, err
}

// IsNull reports whether the arg at position i exists and is null.
func (a Args) IsNull(i int) bool {
	return i >= 0 && i < len(a) && a[i].kind == KindNull
}

func (a Args) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Arg(a))
}

func (a *Args) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*a = Args{}
		return nil
	}
	var raw []Arg
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = []Arg{}
	}
	*a = Args(raw)
	return nil
}

// Value implements the driver.Valuer interface.
func (a Args) Value() (driver.Value, error) {
	b, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the Scanner interface.
func (a *Args) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Args{}
		return nil
	case []byte:
		return a.UnmarshalJSON(v)
	case string:
		return a.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("Unsupported Args: %#v", src)
	}
}
