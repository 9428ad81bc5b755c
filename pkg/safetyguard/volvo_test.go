package safetyguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func frame8(bytes ...byte) []byte {
	data := make([]byte, 8)
	copy(data, bytes)
	return data
}

func TestVehicleState_RXHookTracksSpeedGasBrake(t *testing.T) {
	s := &VehicleState{}

	s.RXHook(MainBus, VehicleSpeed1Address, frame8(0, 0, 0, 0, 0, 0, 0x00, 35))
	assert.False(t, s.vehicleMoving, "below 36 raw is stationary")

	s.RXHook(MainBus, VehicleSpeed1Address, frame8(0, 0, 0, 0, 0, 0, 0x00, 36))
	assert.True(t, s.vehicleMoving)

	s.RXHook(MainBus, AccPedalAddress, frame8(0, 0, 0x00, 50))
	assert.False(t, s.gasPressed)
	s.RXHook(MainBus, AccPedalAddress, frame8(0, 0, 0x00, 150))
	assert.True(t, s.gasPressed)

	s.RXHook(MainBus, BrakeInfoAddress, frame8(0, 0, 0x00))
	assert.False(t, s.brakePressed)
	s.RXHook(MainBus, BrakeInfoAddress, frame8(0, 0, 0x08))
	assert.True(t, s.brakePressed)
}

func TestVehicleState_RXHookTracksCruiseState(t *testing.T) {
	s := &VehicleState{}
	s.RXHook(CamBus, FSM0Address, frame8(0, 0, 5))
	assert.False(t, s.cruiseEngagedPrev)

	s.RXHook(CamBus, FSM0Address, frame8(0, 0, 6))
	assert.True(t, s.cruiseEngagedPrev)

	s.RXHook(CamBus, FSM0Address, frame8(0, 0, 7))
	assert.True(t, s.cruiseEngagedPrev)
}

func TestVehicleState_TXHookCCButtonsViolations(t *testing.T) {
	s := &VehicleState{}

	// Cancel bit (59) set while cruise not engaged: violation. The resume
	// inverse (45) is set so the resume check does not trip on its own.
	data := frame8()
	data[59/8] |= 1 << (59 % 8)
	data[45/8] |= 1 << (45 % 8)
	assert.False(t, s.TXHook(CCButtonsAddress, data))

	// With cruise engaged, the same cancel bit is fine.
	s.cruiseEngagedPrev = true
	assert.True(t, s.TXHook(CCButtonsAddress, data))
}

func TestVehicleState_TXHookResumeRequiresControlsAllowed(t *testing.T) {
	s := &VehicleState{cruiseEngagedPrev: true}
	data := frame8()
	data[43/8] |= 1 << (43 % 8) // ACCOnOffBtnInv set, cancel-inverse satisfied
	data[45/8] |= 1 << (45 % 8) // ACCResumeBtnInv set, resume-inverse satisfied

	assert.True(t, s.TXHook(CCButtonsAddress, data), "no bits beyond the inverses set, no violation")

	data[61/8] |= 1 << (61 % 8) // ACCResumeBtn set
	assert.False(t, s.TXHook(CCButtonsAddress, data), "resume pressed without controls_allowed")

	s.controlsAllowed = true
	assert.True(t, s.TXHook(CCButtonsAddress, data))
}

func TestVehicleState_TXHookFSM2RequiresControlsAllowed(t *testing.T) {
	s := &VehicleState{}
	data := frame8(0, 0, 0, 0, 0, 0x01)

	assert.False(t, s.TXHook(FSM2Address, data), "lka active without controls_allowed")

	s.controlsAllowed = true
	assert.True(t, s.TXHook(FSM2Address, data))

	data[5] = 0
	s.controlsAllowed = false
	assert.True(t, s.TXHook(FSM2Address, data), "lka mode 0 is not active")
}

func TestVehicleState_SetControlsAllowed(t *testing.T) {
	s := &VehicleState{}
	s.SetControlsAllowed(true)
	assert.True(t, s.controlsAllowed)
}
