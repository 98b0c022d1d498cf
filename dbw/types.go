package dbw

import (
	"fmt"
	"sort"
)

// MessageID is an 11-bit standard CAN identifier.
type MessageID uint16

const maxStdID = 0x7FF

// Outbound command identifiers.
const (
	IDThrottle MessageID = 0x100
	IDBrake    MessageID = 0x101
	IDSteer    MessageID = 0x102
	IDGear     MessageID = 0x103
	IDPark     MessageID = 0x104
	IDMode     MessageID = 0x105
)

// Inbound telemetry identifiers.
const (
	IDThrottleReport MessageID = 0x500
	IDBrakeReport    MessageID = 0x501
	IDSteerReport    MessageID = 0x502
	IDSpeedReport    MessageID = 0x505
)

var idNames = map[MessageID]string{
	IDThrottle:       "throttle",
	IDBrake:          "brake",
	IDSteer:          "steer",
	IDGear:           "gear",
	IDPark:           "park",
	IDMode:           "mode",
	IDThrottleReport: "throttle_report",
	IDBrakeReport:    "brake_report",
	IDSteerReport:    "steer_report",
	IDSpeedReport:    "speed_report",
}

// OutboundIDs lists every identifier the controller transmits, in ascending order.
func OutboundIDs() []MessageID {
	return []MessageID{IDThrottle, IDBrake, IDSteer, IDGear, IDPark, IDMode}
}

// InboundIDs lists the telemetry identifiers the bridge decodes.
func InboundIDs() []MessageID {
	return []MessageID{IDThrottleReport, IDBrakeReport, IDSteerReport, IDSpeedReport}
}

// Valid reports whether id fits a standard 11-bit identifier.
func (id MessageID) Valid() bool { return id <= maxStdID }

// IsOutbound reports whether id belongs to the fixed command set.
func (id MessageID) IsOutbound() bool {
	return id >= IDThrottle && id <= IDMode
}

func (id MessageID) String() string {
	if name, ok := idNames[id]; ok {
		return fmt.Sprintf("0x%03X(%s)", uint16(id), name)
	}
	return fmt.Sprintf("0x%03X", uint16(id))
}

// Payload is the fixed 8-byte data field of every frame the bridge handles.
type Payload [8]byte

func (p Payload) String() string { return fmt.Sprintf("% X", p[:]) }

// PayloadFromBytes copies up to 8 bytes into a Payload, zero-padding the rest.
func PayloadFromBytes(b []byte) (Payload, error) {
	var p Payload
	if len(b) > len(p) {
		return p, fmt.Errorf("%w: %d data bytes, at most %d allowed", ErrMalformedFrame, len(b), len(p))
	}
	copy(p[:], b)
	return p, nil
}

// Frame couples an identifier with its payload.
type Frame struct {
	ID      MessageID
	Payload Payload
}

// defaultOutbound is the neutral command set installed at construction:
// controls enabled at zero throttle, zero brake and centred steering.
func defaultOutbound() map[MessageID]Payload {
	return map[MessageID]Payload{
		IDThrottle: {0x01},
		IDBrake:    {0x01},
		IDSteer:    mustEncodeSteer(0),
		IDGear:     {0x01, 0x04},
		IDPark:     {},
		IDMode:     {},
	}
}

func sortedIDs(m map[MessageID]Payload) []MessageID {
	ids := make([]MessageID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
