package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeRoundTrip(t *testing.T) {
	type payload struct {
		Name  string
		Addr  int64
		Conf  int64
		Valid bool
	}

	in := payload{Name: "session", Addr: 4096, Conf: 12, Valid: true}
	s, err := SerializeToString(in)
	assert.NoError(t, err)
	assert.NotEmpty(t, s)

	var out payload
	err = DeserializeFromString(s, &out)
	assert.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDeserializeGarbage(t *testing.T) {
	var out struct{ A int }
	err := DeserializeFromString("not a gob stream", &out)
	assert.Error(t, err)
}

func TestStringToHex(t *testing.T) {
	assert.Equal(t, "616263", StringToHex("abc"))
	assert.Equal(t, "", StringToHex(""))
}
