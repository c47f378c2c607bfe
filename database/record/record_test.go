package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/recordstore/formats/dsd"
)

func testUser() *User {
	return &User{
		Name:    "Alice",
		Age:     "28",
		Contact: "9999999999",
		Company: "Amazon",
		Address: &Address{
			City:       "Seattle",
			State:      "Washington",
			Country:    "USA",
			PostalCode: "98101",
		},
	}
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	u := testUser()
	for _, format := range []dsd.SerializationFormat{dsd.JSON, dsd.CBOR, dsd.MsgPack, dsd.YAML} {
		data, err := u.Marshal(format)
		require.NoError(t, err, format)

		loaded, err := Unmarshal(data, format)
		require.NoError(t, err, format)
		assert.True(t, u.Equal(loaded), "%s: %+v", format, loaded)
	}

	var nilUser *User
	_, err := nilUser.Marshal(dsd.JSON)
	assert.Error(t, err)
}

func TestJSONLayout(t *testing.T) {
	t.Parallel()

	data, err := testUser().Marshal(dsd.JSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pincode": "98101"`)
	assert.Contains(t, string(data), `"company": "Amazon"`)
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := testUser()
	b := testUser()
	assert.True(t, a.Equal(b))

	b.Company = "Google"
	assert.False(t, a.Equal(b))

	b = testUser()
	b.Address.City = "Portland"
	assert.False(t, a.Equal(b))

	b.Address = nil
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))

	var nilUser *User
	assert.True(t, nilUser.Equal(nil))
}
