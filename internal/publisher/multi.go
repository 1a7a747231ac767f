package publisher

import (
	"context"
	"errors"

	"github.com/Checker-Finance/navi/pkg/model"
)

// Sink receives trade events.
type Sink interface {
	Notify(ctx context.Context, evt model.TradeEvent) error
}

// Multi delivers each event to every sink, in order, and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, evt model.TradeEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
