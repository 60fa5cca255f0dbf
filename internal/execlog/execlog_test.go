package execlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	confidence := 62
	recs := []*Record{
		{
			Function:  "math/add",
			Arguments: map[string]any{"a": float64(5), "b": float64(3)},
			Result:    float64(8),
			Status:    StatusSuccess,
			Origin:    OriginExplicit,
		},
		{
			Function:   "text/summarize",
			Status:     StatusError,
			Error:      "execution of text/summarize failed: kaboom",
			Origin:     OriginAuto,
			Confidence: &confidence,
		},
	}
	for i, rec := range recs {
		rec.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Append(ctx, rec))
		assert.NotEmpty(t, rec.ID, "Append fills in the ID")
	}

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest last.
	assert.Equal(t, "math/add", got[0].Function)
	assert.Equal(t, "text/summarize", got[1].Function)

	assert.Equal(t, map[string]any{"a": float64(5), "b": float64(3)}, got[0].Arguments)
	assert.Equal(t, float64(8), got[0].Result)
	assert.Nil(t, got[0].Confidence)

	require.NotNil(t, got[1].Confidence)
	assert.Equal(t, 62, *got[1].Confidence)
	assert.Equal(t, OriginAuto, got[1].Origin)
	assert.Contains(t, got[1].Error, "kaboom")
}

func TestRecentLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &Record{
			Function:  "math/add",
			Status:    StatusSuccess,
			Origin:    OriginManual,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCountByStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &Record{Function: "a", Status: StatusSuccess, Origin: OriginManual}))
	require.NoError(t, s.Append(ctx, &Record{Function: "b", Status: StatusSuccess, Origin: OriginManual}))
	require.NoError(t, s.Append(ctx, &Record{Function: "c", Status: StatusError, Origin: OriginManual}))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{StatusSuccess: 2, StatusError: 1}, counts)
}
