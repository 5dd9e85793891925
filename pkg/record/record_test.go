package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2005-01-01")
	require.NoError(t, err)
	assert.Equal(t, 2005, d.Year())

	d, err = ParseDate("2012-06-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2012-06-01", d.String())

	_, err = ParseDate("01/06/2012")
	assert.Error(t, err)
}

func TestRecordJSON(t *testing.T) {
	rec := Record{
		ID:           "10",
		PartitionKey: NewDate(2009, time.December, 31),
		Payload:      map[string]string{"name": "Portal"},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"10","partition_key":"2009-12-31","payload":{"name":"Portal"}}`, string(b))

	var back Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rec.PartitionKey.String(), back.PartitionKey.String())
	assert.Equal(t, rec.Payload, back.Payload)
}

func TestRecordValidate(t *testing.T) {
	assert.Error(t, Record{PartitionKey: NewDate(2000, 1, 1)}.Validate())
	assert.Error(t, Record{ID: "x"}.Validate())
	assert.NoError(t, Record{ID: "x", PartitionKey: NewDate(2000, 1, 1)}.Validate())
}

func TestPayloadEncoding(t *testing.T) {
	s, err := Record{ID: "a"}.EncodePayload()
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	p, err := DecodePayload(`{"price":"9.99"}`)
	require.NoError(t, err)
	assert.Equal(t, "9.99", p["price"])

	_, err = DecodePayload("not json")
	assert.Error(t, err)
}
