// Package config loads the gateway's ini-format configuration file: which
// CAN interface/channel to bind, the address allow-list that replaces the
// built-in default filter when non-empty, and any additional fingerprint-table
// entries. Grounded on the teacher's own EDS (also ini-format) parser.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/sunnypilot/opendbc-go/pkg/fingerprint"
)

// Gateway is the fully parsed configuration for cmd/uds-gateway.
type Gateway struct {
	Interface         string
	Channel           string
	AllowAddresses    []uint32
	ExtraFingerprints []ExtraFingerprint
}

// ExtraFingerprint is one operator-supplied addition to the fingerprint
// table, layered on top of fingerprint.DefaultTable at startup.
type ExtraFingerprint struct {
	ECUAddress      uint32
	ExpectedVersion string
	SlipFactor      float64
	SteerRatio      float64
	Wheelbase       float64
}

// Load parses an ini-format file (path, []byte, or io.Reader — anything
// gopkg.in/ini.v1 accepts) into a Gateway configuration.
//
// Expected shape:
//
//	[bus]
//	interface = rawsocket
//	channel = can0
//
//	[addresses]
//	allow = 0x7e0, 0x7e8, 0x730, 0x7d0, 0x7c4
//
//	[fingerprint "my ecu variant"]
//	ecu_address = 0x7c4
//	expected_version = "my custom build string"
//	slip_factor = -0.0006
//	steer_ratio = 14.0
//	wheelbase = 2.9
func Load(source any) (*Gateway, error) {
	file, err := ini.Load(source)
	if err != nil {
		return nil, fmt.Errorf("config: loading file: %w", err)
	}

	gw := &Gateway{
		Interface: file.Section("bus").Key("interface").MustString("virtual"),
		Channel:   file.Section("bus").Key("channel").MustString("can0"),
	}

	if raw := file.Section("addresses").Key("allow").String(); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			addr, err := strconv.ParseUint(field, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("config: parsing address %q: %w", field, err)
			}
			gw.AllowAddresses = append(gw.AllowAddresses, uint32(addr))
		}
	}

	for _, section := range file.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, "fingerprint ") {
			continue
		}
		ecuAddr, err := strconv.ParseUint(section.Key("ecu_address").Value(), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("config: section %q: ecu_address: %w", name, err)
		}
		gw.ExtraFingerprints = append(gw.ExtraFingerprints, ExtraFingerprint{
			ECUAddress:      uint32(ecuAddr),
			ExpectedVersion: section.Key("expected_version").String(),
			SlipFactor:      section.Key("slip_factor").MustFloat64(),
			SteerRatio:      section.Key("steer_ratio").MustFloat64(),
			Wheelbase:       section.Key("wheelbase").MustFloat64(),
		})
	}

	return gw, nil
}

// ApplyFingerprints appends every ExtraFingerprint to fingerprint.DefaultTable.
// It must run once at startup, before any Resolver does a Lookup, since
// DefaultTable is read without synchronization during steady-state operation.
func (g *Gateway) ApplyFingerprints() {
	for _, extra := range g.ExtraFingerprints {
		fingerprint.AddTableEntry(extra.ECUAddress, extra.ExpectedVersion, fingerprint.SteeringParams{
			SlipFactor: extra.SlipFactor,
			SteerRatio: extra.SteerRatio,
			Wheelbase:  extra.Wheelbase,
		})
	}
}
