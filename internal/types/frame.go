package types

import "time"

// Frame is one camera image. Data must not be modified once the frame has
// been handed to the frame buffer.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	ReceivedAt time.Time
	Seq        uint64
}
