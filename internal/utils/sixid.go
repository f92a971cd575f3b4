package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixIDHookFunc lets tests pin the ids produced by NewSixID.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is consulted by NewSixID when set.
var NewSixIDHook SixIDHookFunc

// sixIDSubtype is the BSON binary subtype ids are stored under.
const sixIDSubtype byte = 0x80

// SixID is a 6-byte random identifier rendered as 10 Crockford base32 characters.
type SixID [6]byte

// ErrInvalidSixID is returned for malformed textual or binary ids.
var ErrInvalidSixID = errors.New("invalid id")

// NewSixID returns a fresh random id.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("sixid: crypto/rand failed: %v", err))
	}
	return id
}

// MustParseSixID is ParseSixID for fixtures and constants.
func MustParseSixID(s string) SixID {
	id, err := ParseSixID(s)
	if err != nil {
		panic(err)
	}
	return id
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecode [256]int8

func init() {
	for i := range crockfordDecode {
		crockfordDecode[i] = -1
	}
	for i := 0; i < len(crockfordAlphabet); i++ {
		c := crockfordAlphabet[i]
		crockfordDecode[c] = int8(i)
		crockfordDecode[strings.ToLower(string(c))[0]] = int8(i)
	}
	// Crockford aliases for easily confused glyphs.
	for _, alias := range []struct{ from, to byte }{{'O', '0'}, {'o', '0'}, {'I', '1'}, {'i', '1'}, {'L', '1'}, {'l', '1'}} {
		crockfordDecode[alias.from] = crockfordDecode[alias.to]
	}
}

// IsZero reports whether the id is unset.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// String renders the id LSB-first in 5-bit groups.
func (u SixID) String() string {
	out := make([]byte, 0, 10)
	var acc uint
	var bits uint
	for _, b := range u {
		acc |= uint(b) << bits
		bits += 8
		for bits >= 5 {
			out = append(out, crockfordAlphabet[acc&0x1f])
			acc >>= 5
			bits -= 5
		}
	}
	if bits > 0 {
		out = append(out, crockfordAlphabet[acc&0x1f])
	}
	return string(out)
}

// ParseSixID decodes the textual form produced by String. Hyphens and spaces are ignored.
func ParseSixID(s string) (SixID, error) {
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != 10 {
		return SixID{}, fmt.Errorf("%w: want 10 characters, got %d", ErrInvalidSixID, len(s))
	}
	var id SixID
	var acc uint64
	var bits uint
	n := 0
	for i := 0; i < len(s); i++ {
		v := crockfordDecode[s[i]]
		if v < 0 {
			return SixID{}, fmt.Errorf("%w: bad character %q", ErrInvalidSixID, s[i])
		}
		acc |= uint64(v) << bits
		bits += 5
		for bits >= 8 && n < len(id) {
			id[n] = byte(acc)
			n++
			acc >>= 8
			bits -= 8
		}
	}
	return id, nil
}

func (u SixID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *SixID) UnmarshalText(b []byte) error {
	parsed, err := ParseSixID(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalJSON renders the id as a JSON string.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON accepts the textual form. An empty string leaves the zero id.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*u = SixID{}
		return nil
	}
	return u.UnmarshalText([]byte(s))
}

// MarshalBSONValue stores the id as binary with subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.Binary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue reads the binary form written by MarshalBSONValue.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null {
		*u = SixID{}
		return nil
	}
	if t != bsontype.Binary {
		return fmt.Errorf("%w: bson type %s", ErrInvalidSixID, t)
	}
	subtype, bin, _, ok := bsoncore.ReadBinary(data)
	if !ok || subtype != sixIDSubtype || len(bin) != len(u) {
		return fmt.Errorf("%w: bad binary payload", ErrInvalidSixID)
	}
	copy(u[:], bin)
	return nil
}
