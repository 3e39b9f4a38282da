package pipeline

import (
	"fmt"
	"time"

	"listing-factory/models"
)

// Status is the outcome of one listing
type Status string

const (
	StatusPersisted Status = "persisted"
	// StatusPartial means the listing row is stored but its images are not
	StatusPartial   Status = "partial"
	StatusInvalid   Status = "invalid"
	StatusFiltered  Status = "filtered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result is what happened to one source URL
type Result struct {
	SourceURL string
	Status    Status
	ListingID string
	Created   bool
	Listing   *models.CanonicalListing
	Reason    string
	Err       error
}

// Stored reports whether the listing row was written
func (r Result) Stored() bool {
	return r.Status == StatusPersisted || r.Status == StatusPartial
}

// Summary aggregates the results of a run, in input order
type Summary struct {
	Results  []Result
	Started  time.Time
	Finished time.Time

	Persisted int
	Created   int
	Partial   int
	Invalid   int
	Filtered  int
	Failed    int
	Cancelled int
}

func newSummary(results []Result, started, finished time.Time) *Summary {
	s := &Summary{Results: results, Started: started, Finished: finished}
	for _, r := range results {
		switch r.Status {
		case StatusPersisted:
			s.Persisted++
		case StatusPartial:
			s.Partial++
		case StatusInvalid:
			s.Invalid++
		case StatusFiltered:
			s.Filtered++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
		if r.Stored() && r.Created {
			s.Created++
		}
	}
	return s
}

// Total is the number of source URLs in the run
func (s *Summary) Total() int {
	return len(s.Results)
}

// Duration of the run
func (s *Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Listings returns the stored listings in input order
func (s *Summary) Listings() []*models.CanonicalListing {
	var listings []*models.CanonicalListing
	for _, r := range s.Results {
		if r.Stored() && r.Listing != nil {
			listings = append(listings, r.Listing)
		}
	}
	return listings
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d listings: %d persisted (%d new), %d partial, %d invalid, %d filtered, %d failed, %d cancelled in %s",
		s.Total(), s.Persisted, s.Created, s.Partial, s.Invalid, s.Filtered, s.Failed, s.Cancelled,
		s.Duration().Round(time.Second))
}
