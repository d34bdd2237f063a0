package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadFrame indicates a sensor line that does not match the link
// format. Callers treat it as a malformed payload, not a transport
// failure.
var ErrBadFrame = errors.New("MALFORMED_FRAME")

// Sensor link framing, as emitted by the flight controller:
//
//	<SENSOR_DATA|MPU|ax|ay|az|gx|gy|gz|BMP|pressure|temperature|altitude>
//
// The altitude field is optional on older firmware.
const (
	frameOpen   = "<"
	frameClose  = ">"
	frameMagic  = "SENSOR_DATA"
	frameImuTag = "MPU"
	frameBaroTag = "BMP"
)

// ParseSensorLine decodes one raw sensor line into a Payload. Lines
// that do not carry the SENSOR_DATA envelope are rejected with
// ErrBadFrame.
func ParseSensorLine(line string) (Payload, error) {
	var p Payload

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, frameOpen) || !strings.HasSuffix(line, frameClose) {
		return p, fmt.Errorf("%w: missing frame delimiters", ErrBadFrame)
	}

	parts := strings.Split(line[1:len(line)-1], "|")
	if len(parts) < 11 || parts[0] != frameMagic || parts[1] != frameImuTag || parts[8] != frameBaroTag {
		return p, fmt.Errorf("%w: unexpected layout", ErrBadFrame)
	}

	fields := []struct {
		idx int
		dst *float64
	}{
		{2, &p.Accel.X},
		{3, &p.Accel.Y},
		{4, &p.Accel.Z},
		{5, &p.Gyro.X},
		{6, &p.Gyro.Y},
		{7, &p.Gyro.Z},
		{9, &p.Pressure},
		{10, &p.Temperature},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(parts[f.idx], 64)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: field %d: %v", ErrBadFrame, f.idx, err)
		}
		*f.dst = v
	}

	if len(parts) > 11 {
		v, err := strconv.ParseFloat(parts[11], 64)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: altitude: %v", ErrBadFrame, err)
		}
		p.Altitude = v
	}

	return p, nil
}
