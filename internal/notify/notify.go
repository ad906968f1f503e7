// Package notify reports finished runs to operators and downstream consumers.
package notify

import (
	"context"
	"errors"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// Notifier is told about every finished run.
type Notifier interface {
	NotifyRun(ctx context.Context, run *models.ScrapeRun) error
}

// Multi fans a run out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) NotifyRun(ctx context.Context, run *models.ScrapeRun) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
