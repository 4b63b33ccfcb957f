package core

import (
	"encoding/json"

	"github.com/dkeye/groupchat/internal/domain"
)

// Frame is one encoded realtime event ready for the wire.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking and fails with ErrBackpressure when
	// the outbound queue is full.
	TrySend(Frame) error
	Close()
}

func EncodeEvent(ev domain.Event) (Frame, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
