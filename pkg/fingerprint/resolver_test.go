package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseMsg(rxAddr uint32, did uint16, data []byte, ts uint32) Message {
	return Message{
		IsResponse:        true,
		ServiceID:         0x22,
		HasDataIdentifier: true,
		DataIdentifier:    did,
		Data:              data,
		RxAddr:            rxAddr,
		Timestamp:         ts,
	}
}

// S4 — fingerprint hit.
func TestResolver_LatchAndLookupHit(t *testing.T) {
	r := NewResolver(nil)
	version := "NE  MFC  AT USA LHD 1.00 1.01 99211-PI000 240905"
	r.Consume(responseMsg(CameraECUAddress+8, 0xF189, []byte(version), 1000))

	got, ok := r.LatchedVersion(CameraECUAddress)
	require.True(t, ok)
	assert.Equal(t, version, got)

	params := r.Lookup(CameraECUAddress)
	assert.InDelta(t, -8.688e-4, params.SlipFactor, 1e-6)
	assert.Equal(t, 14.26, params.SteerRatio)
	assert.Equal(t, 2.97, params.Wheelbase)
}

// S5 — fingerprint miss falls back to baseline.
func TestResolver_LookupMissReturnsBaseline(t *testing.T) {
	r := NewResolver(nil)
	r.Consume(responseMsg(CameraECUAddress+8, 0xF189, []byte("totally unknown variant string"), 1000))

	params := r.Lookup(CameraECUAddress)
	assert.Same(t, &Baseline, params)
}

func TestResolver_UnknownECUAddressIgnored(t *testing.T) {
	r := NewResolver(nil)
	r.Consume(responseMsg(0x999+8, 0xF189, []byte("whatever"), 1000))
	_, ok := r.LatchedVersion(0x999)
	assert.False(t, ok)
}

// Invariant 5: latch idempotence — first-write wins.
func TestResolver_LatchIdempotence(t *testing.T) {
	r := NewResolver(nil)
	r.Consume(responseMsg(CameraECUAddress+8, 0xF189, []byte("first version"), 100))
	r.Consume(responseMsg(CameraECUAddress+8, 0xF189, []byte("second version"), 200))

	got, ok := r.LatchedVersion(CameraECUAddress)
	require.True(t, ok)
	assert.Equal(t, "first version", got)
}

// Invariant 6: lookup purity — same inputs, same reference, regardless of
// call count.
func TestResolver_LookupPurity(t *testing.T) {
	version := "NQ51.011.021.012551000HKP_NQ524_50509099211P1110"
	first := Lookup(CameraECUAddress, version)
	for i := 0; i < 5; i++ {
		assert.Same(t, first, Lookup(CameraECUAddress, version))
	}
}

// The known-bug predicate named in spec.md §9: only positive responses
// (is_response && !is_negative_response) should ever latch.
func TestResolver_OnlyLatchesPositiveResponses(t *testing.T) {
	r := NewResolver(nil)

	request := responseMsg(CameraECUAddress+8, 0xF189, []byte("request, not a response"), 10)
	request.IsResponse = false
	r.Consume(request)
	_, ok := r.LatchedVersion(CameraECUAddress)
	assert.False(t, ok, "requests must not latch")

	negative := responseMsg(CameraECUAddress+8, 0xF189, []byte("negative response body"), 20)
	negative.IsNegativeResponse = true
	r.Consume(negative)
	_, ok = r.LatchedVersion(CameraECUAddress)
	assert.False(t, ok, "negative responses must not latch")

	r.Consume(responseMsg(CameraECUAddress+8, 0xF189, []byte("actual version"), 30))
	got, ok := r.LatchedVersion(CameraECUAddress)
	require.True(t, ok)
	assert.Equal(t, "actual version", got)
}

func TestResolver_VendorLongFormDIDAlsoLatches(t *testing.T) {
	r := NewResolver(nil)
	r.Consume(responseMsg(RadarECUAddress+8, 0xF100, []byte("long form version"), 5))
	got, ok := r.LatchedVersion(RadarECUAddress)
	require.True(t, ok)
	assert.Equal(t, "long form version", got)
}

func TestResolver_Reset(t *testing.T) {
	r := NewResolver(nil)
	r.Consume(responseMsg(CameraECUAddress+8, 0xF189, []byte("v1"), 1))
	r.Reset()
	_, ok := r.LatchedVersion(CameraECUAddress)
	assert.False(t, ok)
}

func TestCStringEqual(t *testing.T) {
	assert.True(t, cStringEqual("abc", "abc"))
	assert.True(t, cStringEqual("abc\x00trailing-garbage", "abc"))
	assert.False(t, cStringEqual("abc", "abd"))
	assert.True(t, cStringEqual("", ""))
}

func TestIsKnownECUAddress(t *testing.T) {
	assert.True(t, IsKnownECUAddress(CameraECUAddress))
	assert.True(t, IsKnownECUAddress(CameraECUAddress+8))
	assert.False(t, IsKnownECUAddress(0x123))
}
