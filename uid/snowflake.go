// Package uid generates the identifiers of stored records. IDs are snowflakes:
// they sort by creation time and are rendered in base58.
package uid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ID snowflake.ID

var idGen *snowflake.Node

func init() {
	snowflake.Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	var err error
	//nolint:gosec // do not need cryptographic random value here
	idGen, err = snowflake.NewNode(rand.Int63n(1024))
	if err != nil {
		panic(err)
	}
}

// New returns an ID from a node selected when the process starts.
func New() ID {
	return ID(idGen.Generate())
}

// maxBase58Length is the length of the largest int64 in base58.
const maxBase58Length = 11

// Parse decodes the base58 form of an ID.
func Parse(b []byte) (ID, error) {
	if len(b) == 0 {
		return 0, errors.New("empty id")
	}
	if len(b) > maxBase58Length {
		return 0, fmt.Errorf("invalid id %q", b)
	}

	id, err := snowflake.ParseBase58(b)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", b, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("invalid id %q: out of range", b)
	}
	return ID(id), nil
}

func ParseString(s string) (ID, error) {
	return Parse([]byte(s))
}

func (u ID) String() string {
	return snowflake.ID(u).Base58()
}

func (u ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return u.UnmarshalText([]byte(s))
}

func (u *ID) UnmarshalText(b []byte) error {
	id, err := Parse(b)
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// UnmarshalParam decodes an ID bound from a URI or query parameter.
func (u *ID) UnmarshalParam(param string) error {
	return u.UnmarshalText([]byte(param))
}
