package standx

import (
	"encoding/json"

	"main/pkg/exception"

	"github.com/yanun0323/errors"
)

// EventKind tags the decoded push event variants.
type EventKind uint8

const (
	_event_kind_beg EventKind = iota
	EventKindDepth
	EventKindOrder
	EventKindPosition
	EventKindAuth
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _event_kind_beg && k < _event_kind_end
}

// Event is the tagged union of push payloads. Exactly the variant named by
// Kind is populated.
type Event struct {
	Kind     EventKind
	Seq      int64
	Symbol   string
	Depth    DepthPayload
	Order    OrderPayload
	Position PositionPayload
	Auth     AuthPayload
}

// DecodeEvent maps one envelope onto the event union. Unknown channels
// return false; malformed payloads return an error.
func DecodeEvent(env Envelope) (Event, bool, error) {
	ev := Event{Seq: env.Seq, Symbol: env.Symbol}

	switch env.Channel {
	case ChannelDepthBook:
		ev.Kind = EventKindDepth
		if err := json.Unmarshal(env.Data, &ev.Depth); err != nil {
			return ev, false, errors.Wrap(err, "unmarshal depth payload")
		}
	case ChannelOrder:
		ev.Kind = EventKindOrder
		if err := json.Unmarshal(env.Data, &ev.Order); err != nil {
			return ev, false, errors.Wrap(err, "unmarshal order payload")
		}
	case ChannelPosition:
		ev.Kind = EventKindPosition
		if err := json.Unmarshal(env.Data, &ev.Position); err != nil {
			return ev, false, errors.Wrap(err, "unmarshal position payload")
		}
	case ChannelAuth:
		ev.Kind = EventKindAuth
		if err := json.Unmarshal(env.Data, &ev.Auth); err != nil {
			return ev, false, errors.Wrap(err, "unmarshal auth payload")
		}
	default:
		return ev, false, nil
	}

	if !ev.Kind.IsAvailable() {
		return ev, false, exception.ErrInternal
	}
	return ev, true, nil
}
