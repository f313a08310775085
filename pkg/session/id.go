package session

import (
	"strconv"

	"github.com/google/uuid"
)

// StreamID globally identifies one sender's active stream. It is immutable
// once created and retired with the sender session. The UID distinguishes
// concurrent senders on the same advertisement channel; the port is where
// the stream is served.
type StreamID struct {
	UID  string
	Port uint16
}

// NewStreamID mints a fresh stream identity for the given service port.
func NewStreamID(port uint16) StreamID {
	return StreamID{UID: uuid.NewString(), Port: port}
}

func (id StreamID) String() string {
	return id.UID + ":" + strconv.Itoa(int(id.Port))
}
