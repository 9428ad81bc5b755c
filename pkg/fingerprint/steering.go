package fingerprint

// SteeringParams is the immutable vehicle-dynamics parameter set an upstream
// steering controller consumes (spec.md §3). Units and interpretation are
// defined by that controller and out of scope here.
type SteeringParams struct {
	SlipFactor float64
	SteerRatio float64
	Wheelbase  float64
}

// Steering parameter sets, values preserved from the original firmware's
// hyundai_angle_steering_fingerprints.h.
var (
	santaFeHEV5thGen   = SteeringParams{SlipFactor: -0.00059689759884299, SteerRatio: 13.72, Wheelbase: 2.81}
	ioniq5PE           = SteeringParams{SlipFactor: -0.0008688329819908074, SteerRatio: 14.26, Wheelbase: 2.97}
	genesisGV802025    = SteeringParams{SlipFactor: -0.0005685702046115589, SteerRatio: 14.14, Wheelbase: 2.95}
	kiaEV9             = SteeringParams{SlipFactor: -0.0005410588125765342, SteerRatio: 16, Wheelbase: 3.1}
	kiaSportageHEV2026 = SteeringParams{SlipFactor: -0.0006085930193026732, SteerRatio: 13.7, Wheelbase: 2.756}
)

// Baseline is returned by Lookup when no fingerprint entry matches
// (spec.md §3: "A designated baseline set is returned when no fingerprint
// matches"). The original firmware's most conservative choice, the 2026 Kia
// Sportage HEV parameters, is kept as the fallback here too.
var Baseline = kiaSportageHEV2026

// fingerprintEntry pairs an ECU address and its expected software-version
// string with the steering parameters that version implies. The table is
// ordered and scanned in declaration order (spec.md §3): first
// full-equality match wins.
type fingerprintEntry struct {
	ecuAddress              uint32
	expectedSoftwareVersion string
	params                  *SteeringParams
}

// DefaultTable is the static, ordered fingerprint table. Values and order
// preserved from the original firmware's HKG_ECU_STEERING_FINGERPRINTS.
var DefaultTable = []fingerprintEntry{
	{CameraECUAddress, "NE  MFC  AT USA LHD 1.00 1.01 99211-PI000 240905", &ioniq5PE},
	{CameraECUAddress, "NE  MFC  AT EUR LHD 1.00 1.03 99211-GI500 240809", &ioniq5PE},
	{CameraECUAddress, "JX  MFC  AT USA LHD 1.00 1.03 99211-T6510 240124", &genesisGV802025},
	{CameraECUAddress, "MX5HMFC  AT KOR LHD 1.00 1.07 99211-P6000 231218", &santaFeHEV5thGen},
	{CameraECUAddress, "MX5HMFC  AT USA LHD 1.00 1.06 99211-R6000 231218", &santaFeHEV5thGen},
	{CameraECUAddress, "NQ51.011.021.012551000HKP_NQ524_50509099211P1110", &kiaSportageHEV2026},
	{CameraECUAddress, "MV__ RDR -----      1.00 1.02 99110-DO000         ", &kiaEV9},
	{CameraECUAddress, "MV__ RDR -----      1.00 1.03 99110-DO000         ", &kiaEV9},
	{CameraECUAddress, "MV__ RDR -----      1.00 1.04 99110-DO000         ", &kiaEV9},
	{CameraECUAddress, "MV__ RDR -----      1.00 1.02 99110-DO700         ", &kiaEV9},
}

// AddTableEntry appends a fingerprint entry to DefaultTable at runtime, for
// operator-supplied variants not built into the firmware-derived table
// (see pkg/config). Like DefaultTable itself, it must only be called during
// startup before any concurrent Lookup begins.
func AddTableEntry(ecuAddress uint32, expectedSoftwareVersion string, params SteeringParams) {
	DefaultTable = append(DefaultTable, fingerprintEntry{
		ecuAddress:              ecuAddress,
		expectedSoftwareVersion: expectedSoftwareVersion,
		params:                  &params,
	})
}

// cStringEqual compares two version strings the way the original firmware's
// HKG_ECU_VERSION_MATCH does: byte-for-byte up to the first NUL terminator
// in either operand. Go strings aren't NUL-terminated, but a latched version
// captured from a truncated/garbled payload could still contain an embedded
// NUL, so this preserves the original's exact comparison semantics instead
// of a plain Go string equality.
func cStringEqual(a, b string) bool {
	i := 0
	for i < len(a) && i < len(b) && a[i] != 0 && b[i] != 0 && a[i] == b[i] {
		i++
	}
	aEnd := i == len(a) || a[i] == 0
	bEnd := i == len(b) || b[i] == 0
	return aEnd && bEnd
}

// Lookup scans DefaultTable in declaration order and returns the steering
// parameters for the first entry whose ECU address matches and whose
// expected version string equals latchedVersion (C-string semantics).
// Falls back to Baseline on no match. Pure, read-only, and safe to call
// concurrently with capture (spec.md §4.4, §5).
func Lookup(ecuAddress uint32, latchedVersion string) *SteeringParams {
	for i := range DefaultTable {
		entry := &DefaultTable[i]
		if entry.ecuAddress == ecuAddress && cStringEqual(entry.expectedSoftwareVersion, latchedVersion) {
			return entry.params
		}
	}
	return &Baseline
}
