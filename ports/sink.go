package ports

import (
	"context"

	"dataguard/domain/contract"
)

// Alert is the payload handed to an external notification channel when
// a batch fails its quality gate or carries critical findings. Delivery
// (email, chat, paging) is entirely external.
type Alert struct {
	Severity    contract.RuleSeverity `json:"severity"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Context     map[string]any        `json:"context,omitempty"`
}

// EventSink receives every finished quality report for append-only
// persistence. The core never stores reports itself.
type EventSink interface {
	Publish(ctx context.Context, report *contract.QualityReport) error
}

// AlertNotifier delivers alerts for failed or critical assessments.
type AlertNotifier interface {
	Notify(ctx context.Context, alert Alert) error
}
