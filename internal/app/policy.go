package app

import "github.com/dkeye/groupchat/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what to do with a session whose outbound queue was full
// during a broadcast.
type Policy interface {
	OnBackPressure(topic Topic, sess *core.Session) BackpressureAction
}

// SimplePolicy kicks slow consumers; they reconnect and refetch history
// over REST.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(Topic, *core.Session) BackpressureAction {
	return KickMember
}

// LenientPolicy only drops the frame for the slow session.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(Topic, *core.Session) BackpressureAction {
	return DropFrame
}
