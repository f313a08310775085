package session

import "github.com/lancast/lancast/pkg/frame"

// Sink is the consumer side of a receiver session.
//
// OnBuffer is invoked synchronously on the session's read loop for every
// complete buffer, in network-receive order. Long blocking work in OnBuffer
// stalls the read loop directly; decode handoff should be cheap. Returning
// false stops the session.
//
// OnClose fires exactly once per session: after a transport error, after
// OnBuffer returns false, or after an external Close. No OnBuffer call is
// started after it fires.
type Sink interface {
	OnBuffer(info frame.BufferInfo, data []byte) bool
	OnClose()
}

// SinkFuncs adapts plain functions to the Sink interface. Nil members are
// treated as "accept everything" and "do nothing".
type SinkFuncs struct {
	Buffer func(info frame.BufferInfo, data []byte) bool
	Close  func()
}

func (s SinkFuncs) OnBuffer(info frame.BufferInfo, data []byte) bool {
	if s.Buffer == nil {
		return true
	}
	return s.Buffer(info, data)
}

func (s SinkFuncs) OnClose() {
	if s.Close != nil {
		s.Close()
	}
}
