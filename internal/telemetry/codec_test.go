package telemetry

import (
	"errors"
	"testing"
)

func TestParseSensorLine(t *testing.T) {
	line := "<SENSOR_DATA|MPU|0.01|-0.02|9.81|0.1|0.2|0.3|BMP|1013.25|21.5|42.0>"

	p, err := ParseSensorLine(line)
	if err != nil {
		t.Fatalf("ParseSensorLine() failed: %v", err)
	}
	if p.Accel.X != 0.01 || p.Accel.Y != -0.02 || p.Accel.Z != 9.81 {
		t.Errorf("accelerometer = %+v", p.Accel)
	}
	if p.Gyro.X != 0.1 || p.Gyro.Y != 0.2 || p.Gyro.Z != 0.3 {
		t.Errorf("gyroscope = %+v", p.Gyro)
	}
	if p.Pressure != 1013.25 || p.Temperature != 21.5 {
		t.Errorf("barometer = %v hPa, %v C", p.Pressure, p.Temperature)
	}
	if p.Altitude != 42.0 {
		t.Errorf("altitude = %v, want 42.0", p.Altitude)
	}
}

func TestParseSensorLineAltitudeOptional(t *testing.T) {
	// Older firmware omits the trailing altitude field.
	line := "<SENSOR_DATA|MPU|0|0|9.8|0|0|0|BMP|1000.0|20.0>"

	p, err := ParseSensorLine(line)
	if err != nil {
		t.Fatalf("ParseSensorLine() failed: %v", err)
	}
	if p.Altitude != 0 {
		t.Errorf("altitude = %v, want 0", p.Altitude)
	}
}

func TestParseSensorLineTrimsWhitespace(t *testing.T) {
	line := "  <SENSOR_DATA|MPU|0|0|0|0|0|0|BMP|1000|20|5>\r\n"
	if _, err := ParseSensorLine(line); err != nil {
		t.Fatalf("ParseSensorLine() with surrounding whitespace failed: %v", err)
	}
}

func TestParseSensorLineRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"no delimiters", "SENSOR_DATA|MPU|0|0|0|0|0|0|BMP|1000|20"},
		{"missing close", "<SENSOR_DATA|MPU|0|0|0|0|0|0|BMP|1000|20"},
		{"wrong magic", "<TELEMETRY|MPU|0|0|0|0|0|0|BMP|1000|20>"},
		{"wrong imu tag", "<SENSOR_DATA|IMU|0|0|0|0|0|0|BMP|1000|20>"},
		{"wrong baro tag", "<SENSOR_DATA|MPU|0|0|0|0|0|0|BARO|1000|20>"},
		{"too few fields", "<SENSOR_DATA|MPU|0|0|0|BMP|1000|20>"},
		{"non-numeric reading", "<SENSOR_DATA|MPU|x|0|0|0|0|0|BMP|1000|20>"},
		{"non-numeric altitude", "<SENSOR_DATA|MPU|0|0|0|0|0|0|BMP|1000|20|abc>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSensorLine(tt.line); !errors.Is(err, ErrBadFrame) {
				t.Errorf("ParseSensorLine(%q) = %v, want ErrBadFrame", tt.line, err)
			}
		})
	}
}
