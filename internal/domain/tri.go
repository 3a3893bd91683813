package domain

import "bytes"

// Tri is a three-valued boolean: Yes, No, or Unknown.
// Deal intake and CDE preference fields are frequently absent, and absence
// must stay distinguishable from an explicit false so that an unexpressed
// preference never disqualifies a match.
type Tri int8

const (
	Unknown Tri = iota
	Yes
	No
)

// TriOf converts a plain bool to a Tri.
func TriOf(b bool) Tri {
	if b {
		return Yes
	}
	return No
}

// True reports whether the value is explicitly Yes.
func (t Tri) True() bool { return t == Yes }

// False reports whether the value is explicitly No.
func (t Tri) False() bool { return t == No }

// Known reports whether the value was explicitly provided.
func (t Tri) Known() bool { return t != Unknown }

func (t Tri) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

var (
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
	jsonNull  = []byte("null")
)

// MarshalJSON encodes Yes/No as true/false and Unknown as null.
func (t Tri) MarshalJSON() ([]byte, error) {
	switch t {
	case Yes:
		return jsonTrue, nil
	case No:
		return jsonFalse, nil
	default:
		return jsonNull, nil
	}
}

// UnmarshalJSON accepts true, false, or null. Anything else is treated as
// Unknown rather than an error: malformed optional fields must never abort
// a scoring pass.
func (t *Tri) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, jsonTrue):
		*t = Yes
	case bytes.Equal(data, jsonFalse):
		*t = No
	default:
		*t = Unknown
	}
	return nil
}
