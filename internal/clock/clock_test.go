package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())

	f.Advance(36 * time.Hour)
	assert.Equal(t, start.Add(36*time.Hour), f.Now())

	f.Set(start)
	assert.Equal(t, start, f.Now())
}

func TestSeconds(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 5, 999_000_000, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC), Seconds(ts))
}
