package services

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 123_000_000, time.UTC)
	c, err := decodeCursor(encodeCursor(ts, "p-42"))
	require.NoError(t, err)
	assert.True(t, ts.Equal(c.CreatedAt))
	assert.Equal(t, "p-42", c.ID)

	c, err = decodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursorInvalid(t *testing.T) {
	for _, s := range []string{
		"not base64!",
		base64.RawURLEncoding.EncodeToString([]byte("no separator")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|p1")),
		base64.RawURLEncoding.EncodeToString([]byte("2024-03-01T00:00:00Z|")),
	} {
		_, err := decodeCursor(s)
		assert.ErrorIs(t, err, ErrValidation, s)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, clampLimit(0, DefaultPageSize, MaxPageSize))
	assert.Equal(t, DefaultPageSize, clampLimit(-5, DefaultPageSize, MaxPageSize))
	assert.Equal(t, 7, clampLimit(7, DefaultPageSize, MaxPageSize))
	assert.Equal(t, MaxPageSize, clampLimit(200, DefaultPageSize, MaxPageSize))
}
