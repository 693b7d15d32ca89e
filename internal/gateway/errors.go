package gateway

import (
	"errors"
	"fmt"
)

// SubscriberOverflowError signals that a subscriber's delivery buffer
// filled up and events were dropped. The subscriber must re-fetch current
// state through the gateway and call Resynced to resume delivery. LastSeq
// is the sequence number of the last event that was delivered.
type SubscriberOverflowError struct {
	ClientID string
	Capacity int
	LastSeq  int64
}

func (e *SubscriberOverflowError) Error() string {
	return fmt.Sprintf("subscriber %q overflowed its delivery buffer (capacity %d): resync required", e.ClientID, e.Capacity)
}

// IsSubscriberOverflow checks if an error is a SubscriberOverflowError.
func IsSubscriberOverflow(err error) bool {
	var overflowErr *SubscriberOverflowError
	return errors.As(err, &overflowErr)
}
