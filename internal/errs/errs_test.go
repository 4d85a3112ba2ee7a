package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("loading sample: %w", NewCorruptDataError("/tmp/NDVI_1_1.tif", "NaN detected", 3))
	assert.True(t, IsCorruptData(err))
	assert.False(t, IsMissingChannel(err))

	err = Wrap(NewMissingChannelError("/data/s1", "ExR"), "assemble")
	assert.True(t, IsMissingChannel(err))

	var missing *MissingChannelError
	require.True(t, As(err, &missing))
	assert.Equal(t, "ExR", missing.Channel)

	assert.True(t, IsShapeMismatch(NewShapeMismatchError("stack", []int{4, 4}, []int{4, 5})))
	assert.True(t, IsEmptyDataset(NewEmptyDatasetError("/data", 2, 2)))
}

func TestWarnUsesInstalledHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	t.Cleanup(func() { SetWarningHandler(nil) })

	Warn(NewDivisionDegeneracyWarning("CI", 2, 16))

	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "CI has 2 of 16")
}
