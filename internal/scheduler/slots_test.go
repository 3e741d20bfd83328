package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := map[string]Clock{
		"08:00":                     NewClock(8, 0),
		"08:00:00":                  NewClock(8, 0),
		" 16:30 ":                   NewClock(16, 30),
		"0000-01-01T10:00:00Z":      NewClock(10, 0),
		"0000-01-01T12:00:00+07:00": NewClock(12, 0),
	}
	for raw, want := range cases {
		got, err := ParseClock(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "8", "aa:00", "25:00", "10:75", "1:2:3:4"} {
		_, err := ParseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestClockFormatting(t *testing.T) {
	c := NewClock(8, 5)
	assert.Equal(t, "08:05", c.String())
	assert.Equal(t, "08:05:00", c.SQL())
	assert.Equal(t, "08:00-10:00", Catalog[0].String())
}

func TestCatalogIndex(t *testing.T) {
	assert.Len(t, Catalog, 5)
	for i, slot := range Catalog {
		assert.Equal(t, i, CatalogIndex(slot))
	}
	assert.Equal(t, -1, CatalogIndex(TimeSlot{Start: NewClock(9, 0), End: NewClock(11, 0)}))
	assert.True(t, ValidDay(0))
	assert.True(t, ValidDay(4))
	assert.False(t, ValidDay(5))
	assert.False(t, ValidDay(-1))
}
