package tokenizer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	require.Zero(t, Estimate(""))
	require.Equal(t, 1, Estimate("abc"))
	require.Equal(t, 4, Estimate("ride to yoshino"))
}

func TestCounterFallsBackToEstimate(t *testing.T) {
	c := NewCounter("gpt-4o-mini", slog.New(slog.NewTextHandler(io.Discard, nil)))
	// loading is skipped so the estimate path is exercised without network
	c.once.Do(func() {})

	require.Zero(t, c.Count(""))
	require.Equal(t, Estimate("Start slowly and keep a steady cadence."), c.Count("Start slowly and keep a steady cadence."))
}
