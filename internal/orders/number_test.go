package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewOrderNo(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 5, 7, 0, time.UTC)
	no := NewOrderNo(at)
	require.Len(t, no, 20)
	require.Equal(t, "20260301090507", no[:14])
}

func TestNewOrderNoSortsByTime(t *testing.T) {
	earlier := NewOrderNo(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	later := NewOrderNo(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.Less(t, earlier[:14], later[:14])
}

func TestNewOrderNoUnique(t *testing.T) {
	// The 6-hex suffix only has to make same-second collisions rare; the
	// DB unique constraint is the backstop. Keep the draw count small
	// enough that a birthday collision is out of the question.
	at := time.Now()
	seen := make(map[string]bool, 50)
	for i := 0; i < 50; i++ {
		no := NewOrderNo(at)
		require.False(t, seen[no], "duplicate %s", no)
		seen[no] = true
	}

	// Across distinct seconds the prefix alone separates the numbers.
	for i := 0; i < 1000; i++ {
		no := NewOrderNo(at.Add(time.Duration(i+1) * time.Second))
		require.False(t, seen[no], "duplicate %s", no)
		seen[no] = true
	}
}
