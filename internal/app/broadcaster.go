package app

import (
	"errors"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []*core.Session
}

type TopicKind string

const (
	TopicRoom TopicKind = "room"
	TopicUser TopicKind = "user"
	TopicAll  TopicKind = "all"
)

// Topic names the audience of a broadcast for mirrors.
type Topic struct {
	Kind TopicKind
	Key  string
}

// Mirror receives a copy of every frame after local fan-out.
type Mirror interface {
	Publish(topic Topic, f core.Frame) error
}

// Broadcaster is the Event Broadcaster. Fan-out never blocks: frames are
// enqueued on each session's outbound queue and full queues are reported
// as Dropped. Frames for one room are enqueued under that room's stripe,
// so every member observes them in the order they were broadcast.
type Broadcaster struct {
	rooms    *RoomTracker
	registry *Registry
	policy   Policy
	mirror   Mirror
	order    stripedMutex
}

// NewBroadcaster wires the fan-out. policy and mirror may be nil.
func NewBroadcaster(rooms *RoomTracker, registry *Registry, policy Policy, mirror Mirror) *Broadcaster {
	return &Broadcaster{rooms: rooms, registry: registry, policy: policy, mirror: mirror}
}

// ToRoom delivers ev to every session joined to room except exclude.
// An empty exclude delivers to everyone, the sender included.
func (b *Broadcaster) ToRoom(room domain.RoomID, ev domain.Event, exclude core.SessionID) (PublishResult, error) {
	f, err := core.EncodeEvent(ev)
	if err != nil {
		return PublishResult{}, err
	}
	unlock := b.order.lock("room:" + string(room))
	res := fanOut(b.rooms.Audience(room), f, exclude)
	unlock()
	log.Debug().Str("module", "app.broadcast").Str("room", string(room)).Str("event", string(ev.Type)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("room broadcast")
	topic := Topic{Kind: TopicRoom, Key: string(room)}
	b.enforce(topic, res)
	b.publish(topic, f)
	return res, nil
}

// ToUser delivers ev to every connection registered for uid.
func (b *Broadcaster) ToUser(uid domain.UserID, ev domain.Event) (PublishResult, error) {
	f, err := core.EncodeEvent(ev)
	if err != nil {
		return PublishResult{}, err
	}
	unlock := b.order.lock("user:" + string(uid))
	res := fanOut(b.registry.ConnectionsFor(uid), f, "")
	unlock()
	log.Debug().Str("module", "app.broadcast").Str("user", string(uid)).Str("event", string(ev.Type)).Int("sent_to", res.SendTo).Msg("user broadcast")
	topic := Topic{Kind: TopicUser, Key: string(uid)}
	b.enforce(topic, res)
	b.publish(topic, f)
	return res, nil
}

// ToAll delivers ev to every live connection regardless of room membership.
func (b *Broadcaster) ToAll(ev domain.Event) (PublishResult, error) {
	f, err := core.EncodeEvent(ev)
	if err != nil {
		return PublishResult{}, err
	}
	unlock := b.order.lock("all")
	res := fanOut(b.registry.All(), f, "")
	unlock()
	log.Debug().Str("module", "app.broadcast").Str("event", string(ev.Type)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("global broadcast")
	topic := Topic{Kind: TopicAll}
	b.enforce(topic, res)
	b.publish(topic, f)
	return res, nil
}

// Send delivers ev to a single session, typically an ack or an error.
func (b *Broadcaster) Send(sess *core.Session, ev domain.Event) error {
	f, err := core.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return sess.TrySend(f)
}

func fanOut(audience []*core.Session, f core.Frame, exclude core.SessionID) PublishResult {
	res := PublishResult{}
	for _, s := range audience {
		if exclude != "" && s.ID() == exclude {
			continue
		}
		if err := s.TrySend(f); err != nil {
			if !errors.Is(err, core.ErrSessionClosed) {
				res.Dropped = append(res.Dropped, s)
			}
			continue
		}
		res.SendTo++
	}
	return res
}

func (b *Broadcaster) enforce(topic Topic, res PublishResult) {
	if b.policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch b.policy.OnBackPressure(topic, slow) {
		case KickMember:
			log.Warn().Str("module", "app.broadcast").Str("sid", string(slow.ID())).Str("topic", string(topic.Kind)).Msg("kicking slow consumer")
			b.registry.Cancel(slow.ID())
		case MarkSlow, DropFrame, NoAction:
		}
	}
}

func (b *Broadcaster) publish(t Topic, f core.Frame) {
	if b.mirror == nil {
		return
	}
	if err := b.mirror.Publish(t, f); err != nil {
		log.Warn().Err(err).Str("module", "app.broadcast").Str("topic", string(t.Kind)).Str("key", t.Key).Msg("mirror publish failed")
	}
}
