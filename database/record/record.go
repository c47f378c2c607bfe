// Package record defines the records kept in the store.
package record

import (
	"fmt"

	"github.com/safing/recordstore/formats/dsd"
)

// User is a record identified by its name within a collection.
type User struct {
	Name    string   `json:"name" msgpack:"name"`
	Age     string   `json:"age" msgpack:"age"`
	Contact string   `json:"contact" msgpack:"contact"`
	Company string   `json:"company" msgpack:"company"`
	Address *Address `json:"address,omitempty" msgpack:"address,omitempty"`
}

// Address is the postal address of a user.
type Address struct {
	City       string `json:"city" msgpack:"city"`
	State      string `json:"state" msgpack:"state"`
	Country    string `json:"country" msgpack:"country"`
	PostalCode string `json:"pincode" msgpack:"pincode"`
}

// Equal returns whether both users hold the same values.
func (u *User) Equal(other *User) bool {
	switch {
	case u == nil || other == nil:
		return u == other
	case u.Name != other.Name,
		u.Age != other.Age,
		u.Contact != other.Contact,
		u.Company != other.Company:
		return false
	case u.Address == nil || other.Address == nil:
		return u.Address == other.Address
	default:
		return *u.Address == *other.Address
	}
}

// Marshal serializes the user in the given format.
func (u *User) Marshal(format dsd.SerializationFormat) ([]byte, error) {
	if u == nil {
		return nil, fmt.Errorf("record: cannot marshal nil user")
	}
	return dsd.Dump(u, format)
}

// Unmarshal parses a user from data in the given format.
func Unmarshal(data []byte, format dsd.SerializationFormat) (*User, error) {
	u := &User{}
	if err := dsd.Load(data, format, u); err != nil {
		return nil, err
	}
	return u, nil
}
