package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
)

type Event string

const (
	EventManifestStatusChanged Event = "ManifestStatusChanged"
	EventJobStatusChanged      Event = "JobStatusChanged"
	EventSceneStatusChanged    Event = "SceneStatusChanged"
)

type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// ManifestChannel is the channel every event of one manifest is sent on.
func ManifestChannel(id uuid.UUID) string { return "manifest:" + id.String() }

func FromManifestEvent(ev production.ManifestEvent) Message {
	e := EventManifestStatusChanged
	switch ev.Kind {
	case production.EventJobStatus:
		e = EventJobStatusChanged
	case production.EventSceneStatus:
		e = EventSceneStatusChanged
	}
	return Message{Channel: ManifestChannel(ev.ManifestID), Event: e, Data: ev}
}

// HubPublisher broadcasts manifest events on a local hub only.
type HubPublisher struct{ Hub *Hub }

func (p *HubPublisher) Publish(ctx context.Context, ev production.ManifestEvent) error {
	p.Hub.Broadcast(FromManifestEvent(ev))
	return nil
}
