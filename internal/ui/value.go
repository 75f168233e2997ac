package ui

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType tags the variant held by a Value.
type ValueType uint8

const (
	TypeInvalid ValueType = iota
	TypeString
	TypeNumber
	TypeBool
	TypeColor
	TypeEnum
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "s"
	case TypeNumber:
		return "n"
	case TypeBool:
		return "b"
	case TypeColor:
		return "c"
	case TypeEnum:
		return "e"
	default:
		return ""
	}
}

func parseValueType(tag string) ValueType {
	switch tag {
	case "s":
		return TypeString
	case "n":
		return TypeNumber
	case "b":
		return TypeBool
	case "c":
		return TypeColor
	case "e":
		return TypeEnum
	default:
		return TypeInvalid
	}
}

// Value is a property value: a string, number, bool, color or enum tag.
// The zero Value is invalid and is rejected by SetProperty.
type Value struct {
	typ ValueType
	str string
	num float64
	b   bool
}

func String(s string) Value { return Value{typ: TypeString, str: s} }
func Number(n float64) Value { return Value{typ: TypeNumber, num: n} }
func Int(n int) Value { return Value{typ: TypeNumber, num: float64(n)} }
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }
func Enum(tag string) Value { return Value{typ: TypeEnum, str: strings.TrimSpace(tag)} }
func Color(hex string) Value { return Value{typ: TypeColor, str: strings.ToLower(strings.TrimSpace(hex))} }
func (v Value) Type() ValueType { return v.typ }
func (v Value) Valid() bool { return v.typ != TypeInvalid && v.validate() == nil }

// Str returns the string form of string, color and enum values.
func (v Value) Str() (string, bool) {
	switch v.typ {
	case TypeString, TypeColor, TypeEnum:
		return v.str, true
	}
	return "", false
}

func (v Value) Num() (float64, bool) {
	if v.typ != TypeNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) Truth() (bool, bool) {
	if v.typ != TypeBool {
		return false, false
	}
	return v.b, true
}

func (v Value) String() string {
	switch v.typ {
	case TypeString, TypeColor, TypeEnum:
		return v.str
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case TypeBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}

func (v Value) validate() error {
	switch v.typ {
	case TypeString, TypeBool:
		return nil
	case TypeNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return fmt.Errorf("number %v is not finite", v.num)
		}
		return nil
	case TypeEnum:
		if v.str == "" {
			return fmt.Errorf("enum value is empty")
		}
		return nil
	case TypeColor:
		if !isHexColor(v.str) {
			return fmt.Errorf("invalid color %q", v.str)
		}
		return nil
	default:
		return fmt.Errorf("invalid value")
	}
}

func isHexColor(s string) bool {
	if !strings.HasPrefix(s, "#") {
		return false
	}
	hex := s[1:]
	switch len(hex) {
	case 3, 6, 8:
	default:
		return false
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

type valueJSON struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	var raw []byte
	var err error
	switch v.typ {
	case TypeNumber:
		raw, err = json.Marshal(v.num)
	case TypeBool:
		raw, err = json.Marshal(v.b)
	default:
		raw, err = json.Marshal(v.str)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{T: v.typ.String(), V: raw})
}

// UnmarshalJSON accepts the tagged form {"t":"n","v":1} as well as bare
// JSON scalars, which are mapped to string, number or bool.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var in valueJSON
		if err := json.Unmarshal(data, &in); err != nil {
			return err
		}
		typ := parseValueType(in.T)
		out := Value{typ: typ}
		var err error
		switch typ {
		case TypeNumber:
			err = json.Unmarshal(in.V, &out.num)
		case TypeBool:
			err = json.Unmarshal(in.V, &out.b)
		case TypeString, TypeColor, TypeEnum:
			err = json.Unmarshal(in.V, &out.str)
		default:
			return fmt.Errorf("unknown value tag %q", in.T)
		}
		if err != nil {
			return err
		}
		if typ == TypeColor {
			out.str = strings.ToLower(out.str)
		}
		if err := out.validate(); err != nil {
			return err
		}
		*v = out
		return nil
	}
	var scalar any
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	switch x := scalar.(type) {
	case string:
		*v = String(x)
	case float64:
		*v = Number(x)
	case bool:
		*v = Bool(x)
	default:
		return fmt.Errorf("unsupported value %s", trimmed)
	}
	return nil
}
