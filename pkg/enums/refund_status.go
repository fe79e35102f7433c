package enums

import "fmt"

// RefundStatus tracks refund progress for a single order.
type RefundStatus string

const (
	RefundStatusNotRequested RefundStatus = "not_requested"
	RefundStatusRequested    RefundStatus = "requested"
	RefundStatusProcessing   RefundStatus = "processing"
	RefundStatusCompleted    RefundStatus = "completed"
	RefundStatusFailed       RefundStatus = "failed"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusNotRequested,
	RefundStatusRequested,
	RefundStatusProcessing,
	RefundStatusCompleted,
	RefundStatusFailed,
}

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
