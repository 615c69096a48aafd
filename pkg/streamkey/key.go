// Package streamkey defines the identifier used to partition the merger's
// input into independent streams.
package streamkey

import "fmt"

// Key identifies one input stream: a trajectory together with the sensor
// that produced it. Two keys are equal iff both fields match, and the
// type has a total order (trajectory first, then sensor) so a collection
// keyed by Key can be iterated deterministically.
type Key struct {
	TrajectoryID int64
	SensorID     string
}

// New builds a Key from its two components.
func New(trajectoryID int64, sensorID string) Key {
	return Key{TrajectoryID: trajectoryID, SensorID: sensorID}
}

// Less reports whether k sorts before other: by TrajectoryID, then by
// SensorID. It gives the stream collection a deterministic iteration
// order independent of any particular map implementation.
func (k Key) Less(other Key) bool {
	if k.TrajectoryID != other.TrajectoryID {
		return k.TrajectoryID < other.TrajectoryID
	}
	return k.SensorID < other.SensorID
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.TrajectoryID, k.SensorID)
}
