// Package access manages the access request and grant workflow. Requests
// are a durable audit signal only; grants are the ledger-enforced
// delegation the read path checks.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medledger/record-custody-backend/interfaces"
	"github.com/medledger/record-custody-backend/metrics"
)

// Workflow files access requests and records grants on the ledger.
type Workflow struct {
	ledger interfaces.Ledger
	log    *slog.Logger
}

// NewWorkflow creates a Workflow over the given ledger.
func NewWorkflow(ledger interfaces.Ledger, log *slog.Logger) *Workflow {
	return &Workflow{ledger: ledger, log: log}
}

// RequestAccess files a durable request for the record owner to act on.
// It carries no authorization weight and never expires. Filing the same
// request twice is a no-op at the ledger.
func (w *Workflow) RequestAccess(ctx context.Context, recordID interfaces.RecordID, requester interfaces.Identity, purpose string) (id interfaces.RequestID, err error) {
	defer func() { metrics.RecordOp("request_access", err) }()

	requestID := interfaces.RequestID(uuid.New().String())
	if err := w.ledger.FileAccessRequest(ctx, requestID, recordID, purpose, requester); err != nil {
		return "", fmt.Errorf("filing access request: %w", err)
	}

	w.log.Info("Access request filed",
		"requestID", requestID.String(),
		"recordID", recordID.String(),
		"requester", requester.String())
	return requestID, nil
}

// GrantAccess records a time-bounded read grant for grantee. The
// ownership check below is a cheap local pre-check; the ledger repeats
// it and its ErrUnauthorized is the authoritative rejection.
func (w *Workflow) GrantAccess(ctx context.Context, recordID interfaces.RecordID, grantee interfaces.Identity, expiry time.Time, grantor interfaces.Identity) (err error) {
	defer func() { metrics.RecordOp("grant_access", err) }()

	meta, err := w.ledger.RecordMeta(ctx, recordID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordUnknown) {
			return err
		}
		return fmt.Errorf("fetching record metadata: %w", err)
	}
	if meta.Owner != grantor {
		return interfaces.ErrUnauthorized
	}

	receipt, err := w.ledger.GrantAccess(ctx, recordID, grantee, expiry, grantor)
	if err != nil {
		return fmt.Errorf("granting access: %w", err)
	}

	w.log.Info("Access granted",
		"recordID", recordID.String(),
		"grantee", grantee.String(),
		"expiry", expiry,
		"txHash", receipt.TxHash)
	return nil
}
