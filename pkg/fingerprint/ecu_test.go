package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEcuRecord_LatchSkipsOverLengthVersion(t *testing.T) {
	r := &ecuRecord{address: CameraECUAddress}
	tooLong := strings.Repeat("x", maxSoftwareVersionLength+1)

	r.latch(tooLong, 100)
	assert.False(t, r.received, "over-length capture must not latch")

	r.latch("a valid version", 200)
	require.True(t, r.received, "a later correctly-sized capture must still latch")
	assert.Equal(t, "a valid version", r.version)
	assert.EqualValues(t, 200, r.timestamp)
}

func TestEcuRecord_LatchAcceptsMaxLengthVersion(t *testing.T) {
	r := &ecuRecord{address: CameraECUAddress}
	exact := strings.Repeat("y", maxSoftwareVersionLength)

	r.latch(exact, 1)
	require.True(t, r.received)
	assert.Equal(t, exact, r.version)
}
