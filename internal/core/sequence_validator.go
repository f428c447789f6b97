package core

import "fmt"

// SequenceValidator orders feed updates. Each partition (one oracle feed,
// one product's rate) must move strictly forward; gaps are tolerated
// because a skipped price is superseded by the next one anyway.
type SequenceValidator struct {
	onGap   func(partition string, last, got int64)
	onStale func(partition string)
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{}
}

// Check validates next against the last applied sequence of partition.
// A partition that has never been updated accepts any positive sequence.
func (sv *SequenceValidator) Check(partition string, last int64, seen bool, next int64) error {
	if !seen {
		return nil
	}
	if next <= last {
		if sv.onStale != nil {
			sv.onStale(partition)
		}
		return fmt.Errorf("%w: %s at %d, got %d", ErrStaleFeed, partition, last, next)
	}
	if next > last+1 && sv.onGap != nil {
		sv.onGap(partition, last, next)
	}
	return nil
}

func pricePartition(feed string) string {
	return "price:" + feed
}

func ratePartition(productID uint32) string {
	return fmt.Sprintf("rate:%d", productID)
}
