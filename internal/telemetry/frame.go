package telemetry

import "time"

// Vec3 is a three-axis sensor reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Payload carries the sensor readings of one telemetry frame. Position,
// battery, and altitude feed the state snapshot; IMU and barometer
// fields pass through to subscribers uninterpreted.
type Payload struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Altitude    float64 `json:"altitude"`
	Battery     float64 `json:"battery"`
	Pressure    float64 `json:"pressure"`
	Temperature float64 `json:"temperature"`
	Accel       Vec3    `json:"accelerometer"`
	Gyro        Vec3    `json:"gyroscope"`
}

// Frame is one sequenced telemetry packet from a drone. Frames are
// immutable once created and are not retained beyond the latest
// per-drone snapshot.
type Frame struct {
	DroneID    string    `json:"droneId"`
	Seq        uint64    `json:"seq"`
	Payload    Payload   `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}
