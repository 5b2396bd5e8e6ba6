package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion is a version packed as major<<48 | minor<<32 | patch<<16
type ProtocolVersion uint64

// NewProtocolVersion packs major.minor.patch
func NewProtocolVersion(major, minor, patch uint16) ProtocolVersion {
	return ProtocolVersion(uint64(major)<<48 | uint64(minor)<<32 | uint64(patch)<<16)
}

// FromV1 converts the legacy 32-bit packing (major<<16 | minor<<8 | patch)
func FromV1(v uint32) ProtocolVersion {
	return NewProtocolVersion(uint16(v>>16), uint16((v>>8)&0xff), uint16(v&0xff))
}

// ParseVersion parses "major.minor.patch"; missing parts are zero
func ParseVersion(s string) (ProtocolVersion, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
	var nums [3]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = uint16(n)
	}
	return NewProtocolVersion(nums[0], nums[1], nums[2]), nil
}

func (v ProtocolVersion) Major() uint16 { return uint16(v >> 48) }
func (v ProtocolVersion) Minor() uint16 { return uint16(v >> 32) }
func (v ProtocolVersion) Patch() uint16 { return uint16(v >> 16) }

// V1 returns the legacy 32-bit packing, saturating components above 255
func (v ProtocolVersion) V1() uint32 {
	clamp := func(x uint16) uint32 {
		if x > 0xff {
			return 0xff
		}
		return uint32(x)
	}
	return uint32(v.Major())<<16 | clamp(v.Minor())<<8 | clamp(v.Patch())
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// Version 1.5.0 introduced protobuf UDP datagrams
var VersionProtobufUDP = NewProtocolVersion(1, 5, 0)

// NewVersionMessage builds a Version message carrying both packings
func NewVersionMessage(v ProtocolVersion, release, os, osVersion string) *Version {
	return &Version{
		VersionV1: Uint32(v.V1()),
		VersionV2: Uint64(uint64(v)),
		Release:   String(release),
		OS:        String(os),
		OSVersion: String(osVersion),
	}
}
