package pcsc

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ebfe/scard"

	"github.com/gregLibert/smart-card-reader/pkg/reader"
)

// run reports presence transitions of readers until Close.
// Every slot starts Absent so a card inserted before Open still produces an Absent to Present edge.
func (d *Driver) run(ctx Context, readers []string) {
	defer close(d.changes)
	defer close(d.done)

	states := make([]scard.ReaderState, len(readers))
	last := make([]string, len(readers))
	for i, name := range readers {
		states[i] = scard.ReaderState{Reader: name, CurrentState: scard.StateUnaware}
		last[i] = reader.TokenAbsent
	}

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		err := ctx.GetStatusChange(states, d.poll)
		switch {
		case err == nil:
		case errors.Is(err, scard.ErrTimeout):
			continue
		case errors.Is(err, scard.ErrCancelled):
			return
		default:
			d.logger.Warn("status change failed", slog.Any("error", err))
			select {
			case <-d.stop:
				return
			case <-time.After(d.poll):
			}
			continue
		}

		for i := range states {
			flags := states[i].EventState
			states[i].CurrentState = flags &^ scard.StateChanged

			current := token(flags)
			if current == last[i] {
				continue
			}
			if current != reader.TokenPresent {
				d.dropCard(i)
			}

			change := reader.StateChange{Slot: i, Previous: last[i], Current: current}
			last[i] = current

			d.logger.Debug("presence changed",
				slog.Int("slot", i),
				slog.String("previous", change.Previous),
				slog.String("current", change.Current))

			select {
			case d.changes <- change:
			case <-d.stop:
				return
			}
		}
	}
}

func token(flags scard.StateFlag) string {
	switch {
	case flags&scard.StatePresent != 0:
		return reader.TokenPresent
	case flags&scard.StateEmpty != 0:
		return reader.TokenAbsent
	default:
		return reader.TokenUnknown
	}
}
