package store

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitplan/internal/model"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"job.completed"}`)
	assert.Equal(t, "evt_123", computeDedupKey(body))
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	got := computeDedupKey([]byte(`{"notId":"x"}`))
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	require.NoError(t, err)
	assert.Len(t, b, 8)
	assert.Equal(t, got, computeDedupKey([]byte(`{"notId":"x"}`)))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", nullIfEmpty("x"))
}

func TestMarshalNullable(t *testing.T) {
	v, err := marshalNullable[model.JobError](nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = marshalNullable(&model.JobError{Code: "infeasible", Message: "no route"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"infeasible","message":"no route"}`, string(v.([]byte)))
}
