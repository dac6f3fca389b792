package session

import (
	"log/slog"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
)

// loop handles presence notifications strictly one after the other.
func (s *Session) loop(changes <-chan reader.StateChange) {
	defer close(s.loopDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			s.events.push(s.handle(change))
		}
	}
}

func (s *Session) handle(change reader.StateChange) PresenceEvent {
	evt := PresenceEvent{
		Slot:     change.Slot,
		Current:  reader.ParseCardState(change.Current),
		Previous: reader.ParseCardState(change.Previous),
	}
	log := s.logger.With(slog.Int("slot", change.Slot))

	switch {
	case evt.Previous == reader.Absent && evt.Current == reader.Present:
		atr, err := s.ConnectToCard(s.ctx, change.Slot)
		if err != nil {
			log.Warn("card connection failed", slog.Any("error", err))
			evt.Err = err
			break
		}
		evt.ATR = atr
		log.Info("card inserted", slog.String("atr", codec.Display(atr)))

	case evt.Previous == reader.Present && evt.Current == reader.Present:
		log.Debug("duplicate presence ignored",
			slog.String("previous", change.Previous),
			slog.String("current", change.Current))

	default:
		s.mu.Lock()
		s.setLocked(change.Slot, StateAbsent, nil)
		s.mu.Unlock()
		log.Info("card removed",
			slog.String("previous", change.Previous),
			slog.String("current", change.Current))
	}

	return evt
}
