package domain

import "time"

// Period is a resolved time interval scoping one side of a comparison.
// Aggregation treats it as [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) String() string {
	return p.Start.Format("2006-01-02 15:04") + " ~ " + p.End.Format("2006-01-02 15:04")
}
