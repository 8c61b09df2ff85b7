package ui

// quietPresenter drains events without output. The engine still updates
// the stats collector, so a caller can report totals afterwards.
type quietPresenter struct{}

func (quietPresenter) Run(events <-chan Event) error {
	for range events {
	}
	return nil
}

func (quietPresenter) Summary() string { return "" }
