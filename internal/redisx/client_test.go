package redisx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesOpTimeouts(t *testing.T) {
	c := New("localhost:6379")
	defer c.Close()

	opts := c.Options()
	require.Equal(t, 2*time.Second, opts.ReadTimeout)
	require.Equal(t, 2*time.Second, opts.WriteTimeout)
}
