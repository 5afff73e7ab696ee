// Package notify is the fire-and-forget notification boundary. Delivery
// failures are logged and never fail the reconciliation action that
// triggered them.
package notify

import (
	"context"
	"log"

	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// Notifier is invoked once per completed bulk-approval batch when autoApply
// was requested, never per row.
type Notifier interface {
	BatchApproved(ctx context.Context, scope tenant.Scope, approved int) error
}

// LogNotifier writes batch notifications to the process log. Production
// deployments swap in a dispatcher for the platform's notification service.
type LogNotifier struct{}

func (LogNotifier) BatchApproved(_ context.Context, scope tenant.Scope, approved int) error {
	log.Printf("[notify] tenant=%s batch approved: %d reconciliations matched", scope, approved)
	return nil
}
