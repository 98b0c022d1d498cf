package dbw

import (
	"fmt"
	"math"

	"dbw-can-bridge/utils"
)

// Wire layout of the drive-by-wire frames.
const (
	enableControl = 0x01

	cmdFieldStart   = 3 // bytes 3..4, big-endian u16
	speedFieldStart = 2 // bytes 2..3, big-endian i16
	fieldLen        = 2

	percentScale = 10.0
	steerOffset  = 500
	speedScale   = 1000.0

	maxField = math.MaxUint16
)

// EncodeSteer encodes a steering angle in degrees as round(angle)+500.
func EncodeSteer(angleDeg float64) (Payload, error) {
	if math.IsNaN(angleDeg) {
		return Payload{}, fmt.Errorf("%w: steer angle is NaN", ErrDomain)
	}
	raw := math.Round(angleDeg) + steerOffset
	if raw < 0 {
		return Payload{}, fmt.Errorf("%w: steer %.1f deg below %d", ErrDomain, angleDeg, -steerOffset)
	}
	if raw > maxField {
		return Payload{}, fmt.Errorf("%w: steer %.1f deg -> %.0f", ErrEncodeOverflow, angleDeg, raw)
	}
	return commandPayload(uint64(raw)), nil
}

// EncodeThrottle encodes a throttle percentage with one decimal of precision.
func EncodeThrottle(percent float64) (Payload, error) {
	return encodePercent("throttle", percent)
}

// EncodeBrake encodes a brake percentage with one decimal of precision.
func EncodeBrake(percent float64) (Payload, error) {
	return encodePercent("brake", percent)
}

// EncodeGear builds the gear command frame: enable flag plus the gear code in byte 1.
func EncodeGear(gear uint8) Payload {
	return Payload{enableControl, gear}
}

// DecodeThrottleOrBrake returns the percentage carried in bytes 3..4.
func DecodeThrottleOrBrake(data []byte) (float64, error) {
	u, err := field(data, cmdFieldStart)
	if err != nil {
		return 0, err
	}
	return float64(u) / percentScale, nil
}

// DecodeSteer returns the steering angle in degrees carried in bytes 3..4.
func DecodeSteer(data []byte) (float64, error) {
	u, err := field(data, cmdFieldStart)
	if err != nil {
		return 0, err
	}
	return float64(u) - steerOffset, nil
}

// DecodeSpeed returns the signed vehicle speed in m/s carried in bytes 2..3.
func DecodeSpeed(data []byte) (float64, error) {
	u, err := field(data, speedFieldStart)
	if err != nil {
		return 0, err
	}
	return float64(utils.SignedRaw(u, 8*fieldLen)) / speedScale, nil
}

func encodePercent(name string, percent float64) (Payload, error) {
	if math.IsNaN(percent) || percent < 0 {
		return Payload{}, fmt.Errorf("%w: %s %.3f %%", ErrDomain, name, percent)
	}
	raw := math.Round(percent * percentScale)
	if raw > maxField {
		return Payload{}, fmt.Errorf("%w: %s %.1f %% -> %.0f", ErrEncodeOverflow, name, percent, raw)
	}
	return commandPayload(uint64(raw)), nil
}

func commandPayload(raw uint64) Payload {
	p := Payload{enableControl}
	utils.PutFieldBE(p[:], cmdFieldStart, fieldLen, raw)
	return p
}

func field(data []byte, start int) (uint64, error) {
	u, ok := utils.FieldBE(data, start, fieldLen)
	if !ok {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrMalformedFrame, start+fieldLen, len(data))
	}
	return u, nil
}

func mustEncodeSteer(angleDeg float64) Payload {
	p, err := EncodeSteer(angleDeg)
	if err != nil {
		panic(err)
	}
	return p
}
