package signal

import (
	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
)

func (ctl *SignalWSController) handlePing(sess *core.Session) {
	_ = ctl.Orch.Bus.Send(sess, domain.Event{Type: domain.OutPong})
}
