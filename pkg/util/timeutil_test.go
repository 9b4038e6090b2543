package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHourFloor(t *testing.T) {
	in := time.Date(2025, 3, 15, 7, 42, 10, 0, time.FixedZone("JST", 9*60*60))
	require.Equal(t, time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC), HourFloor(in))
}
