package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Wrap("upstream_unavailable", "routing failed", io.EOF))

	require.Equal(t, "upstream_unavailable", CodeOf(wrapped, "fallback"))
	require.Equal(t, "fallback", CodeOf(io.EOF, "fallback"))
	require.True(t, IsCode(wrapped, "upstream_unavailable"))
	require.ErrorIs(t, wrapped, io.EOF)
}

func TestMessageOf(t *testing.T) {
	require.Equal(t, "routing failed", MessageOf(Wrap("upstream_unavailable", "routing failed", io.EOF)))
	require.Equal(t, "EOF", MessageOf(io.EOF))
	require.Empty(t, MessageOf(nil))
}
