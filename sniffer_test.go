package udssniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffer_DisabledIsNoOp(t *testing.T) {
	s := NewSniffer(func() uint32 { return 0 })
	s.SetCallbacks(nil, DefaultIsUDSAddress)
	assert.False(t, s.OfferFrame(singleFrame(0x7CC, []byte{0x3E, 0x00})))
}

func TestSniffer_RequiresAddressFilterWhenEnabled(t *testing.T) {
	s := NewSniffer(func() uint32 { return 0 })
	s.Enable(true)
	// No filter installed: every frame is rejected, not panicked on.
	assert.False(t, s.OfferFrame(singleFrame(0x7CC, []byte{0x3E, 0x00})))
}

func TestSniffer_FiltersByAddress(t *testing.T) {
	s := NewSniffer(func() uint32 { return 0 })
	received := 0
	s.SetCallbacks(func(Message) { received++ }, func(addr uint32) bool { return addr == 0x7CC })
	s.Enable(true)

	assert.False(t, s.OfferFrame(singleFrame(0x7C0, []byte{0x3E, 0x00})))
	assert.True(t, s.OfferFrame(singleFrame(0x7CC, []byte{0x3E, 0x00})))
	assert.Equal(t, 1, received)
}

func TestSniffer_InitClearsStateAndDisables(t *testing.T) {
	s := NewSniffer(func() uint32 { return 0 })
	s.SetCallbacks(func(Message) {}, DefaultIsUDSAddress)
	s.Enable(true)
	require.True(t, s.Enabled())

	s.Init()
	assert.False(t, s.Enabled())
	assert.False(t, s.OfferFrame(singleFrame(0x7CC, []byte{0x3E, 0x00})))
}

func TestSniffer_TeardownForm(t *testing.T) {
	s := NewSniffer(func() uint32 { return 0 })
	s.SetCallbacks(func(Message) {}, DefaultIsUDSAddress)
	s.Enable(true)

	s.SetCallbacks(nil, nil)
	assert.False(t, s.OfferFrame(singleFrame(0x7CC, []byte{0x3E, 0x00})), "filter removed, frame rejected")
}
