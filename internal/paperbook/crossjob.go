package paperbook

import (
	"context"
	"fmt"

	"github.com/aristath/perpautopilot/internal/collaborators"
)

// CrossJob is a scheduler.Job that, each tick, crosses the resting limit
// orders of every symbol with an open paper position against the latest
// mids. Resting orders on a symbol with no open position are not crossed.
type CrossJob struct {
	book *Book
	mids collaborators.MarketDataClient
}

// NewCrossJob constructs a CrossJob.
func NewCrossJob(book *Book, mids collaborators.MarketDataClient) *CrossJob {
	return &CrossJob{book: book, mids: mids}
}

// Name implements scheduler.Job.
func (j *CrossJob) Name() string { return "paper_book_cross" }

// Run implements scheduler.Job.
func (j *CrossJob) Run(ctx context.Context) error {
	allMids, err := j.mids.GetAllMids(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch mids for paper book cross: %w", err)
	}

	positions, err := j.book.ListPositions()
	if err != nil {
		return fmt.Errorf("failed to list paper positions: %w", err)
	}
	for _, pos := range positions {
		mark, ok := allMids[pos.Symbol]
		if !ok {
			continue
		}
		if err := j.book.Cross(pos.Symbol, mark); err != nil {
			return fmt.Errorf("failed to cross %s: %w", pos.Symbol, err)
		}
	}
	return nil
}
