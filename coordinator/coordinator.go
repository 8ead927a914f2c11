// Package coordinator implements the record custody flows: sealing and
// anchoring new records, authorized reads, listing, and revocation. It
// is the only component that touches plaintext payloads and plaintext
// custody keys; the ledger and the blob store both see ciphertext only.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medledger/record-custody-backend/cryptoutils"
	"github.com/medledger/record-custody-backend/interfaces"
	"github.com/medledger/record-custody-backend/metrics"
)

// Coordinator orchestrates the custody pipeline across the ledger, the
// content-addressed blob store, and the key escrow service.
type Coordinator struct {
	ledger  interfaces.Ledger
	storage interfaces.StorageBackend
	kms     interfaces.CustodyKMS
	log     *slog.Logger
}

// New creates a Coordinator. All dependencies are required.
func New(ledger interfaces.Ledger, storage interfaces.StorageBackend, kms interfaces.CustodyKMS, log *slog.Logger) *Coordinator {
	return &Coordinator{
		ledger:  ledger,
		storage: storage,
		kms:     kms,
		log:     log,
	}
}

// CreateResult reports a successfully anchored record.
type CreateResult struct {
	RecordID  interfaces.RecordID
	ContentID interfaces.ContentID
	Receipt   interfaces.Receipt
}

// Record is a fully resolved record as returned by an authorized read:
// the anchored metadata plus the decrypted payload.
type Record struct {
	Meta interfaces.RecordMeta
	Data []byte
}

// Create seals the payload under a fresh key, stores the ciphertext,
// wraps the key under the owner's escrowed public key and anchors the
// result on the ledger. The anchor is the last step, so a failure never
// leaves a ledger entry pointing at missing content; an orphaned blob
// from a failed anchor is harmless and unreachable.
func (c *Coordinator) Create(ctx context.Context, owner interfaces.Identity, payload []byte, recordType string) (result CreateResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordOp("create", err)
		metrics.ObserveOp("create", start)
	}()

	recordID := interfaces.RecordID(uuid.New().String())
	log := c.log.With("recordID", recordID.String(), "owner", owner.String())

	recordKey, err := cryptoutils.GenerateRecordKey()
	if err != nil {
		return CreateResult{}, fmt.Errorf("generating record key: %w", err)
	}

	sealed, err := cryptoutils.SealRecord(payload, recordKey)
	if err != nil {
		return CreateResult{}, fmt.Errorf("sealing record: %w", err)
	}

	contentID, err := c.storage.Store(ctx, sealed)
	if err != nil {
		return CreateResult{}, fmt.Errorf("storing record content: %w", err)
	}

	ownerPub, err := c.kms.OwnerPublicKey(owner)
	if err != nil {
		return CreateResult{}, fmt.Errorf("fetching owner public key: %w", err)
	}

	wrappedKey, err := cryptoutils.EncryptWithPublicKey(ownerPub, recordKey)
	if err != nil {
		return CreateResult{}, fmt.Errorf("wrapping custody key: %w", err)
	}

	receipt, err := c.ledger.AnchorRecord(ctx, recordID, contentID, wrappedKey, recordType, owner)
	if err != nil {
		return CreateResult{}, fmt.Errorf("anchoring record: %w", err)
	}

	log.Info("Record anchored",
		"contentID", contentID.String(),
		"recordType", recordType,
		"txHash", receipt.TxHash)

	return CreateResult{
		RecordID:  recordID,
		ContentID: contentID,
		Receipt:   receipt,
	}, nil
}

// Read returns the decrypted record for an authorized caller. The ledger
// authorization check runs first and a denial terminates the read before
// any metadata, blob or key material is touched. An unknown record ID is
// indistinguishable from a denial for unauthorized callers.
func (c *Coordinator) Read(ctx context.Context, recordID interfaces.RecordID, caller interfaces.Identity) (record Record, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordOp("read", err)
		metrics.ObserveOp("read", start)
	}()

	allowed, err := c.ledger.CheckAccess(ctx, recordID, caller)
	if err != nil {
		return Record{}, fmt.Errorf("checking access: %w", err)
	}
	if !allowed {
		c.log.Info("Record read denied", "recordID", recordID.String(), "caller", caller.String())
		return Record{}, interfaces.ErrAccessDenied
	}

	meta, err := c.ledger.RecordMeta(ctx, recordID)
	if err != nil {
		return Record{}, fmt.Errorf("fetching record metadata: %w", err)
	}
	if !meta.IsActive {
		return Record{}, interfaces.ErrRecordInactive
	}

	sealed, err := c.storage.Fetch(ctx, meta.ContentID)
	if err != nil {
		return Record{}, fmt.Errorf("fetching record content: %w", err)
	}

	recordKey, err := c.kms.UnwrapCustodyKey(meta.Owner, meta.CustodyKeyBlob)
	if err != nil {
		return Record{}, fmt.Errorf("unwrapping custody key: %w", err)
	}

	// Terminal on failure. A wrong key or corrupted ciphertext cannot
	// be fixed by retrying.
	payload, err := cryptoutils.OpenRecord(sealed, recordKey)
	if err != nil {
		c.log.Error("Record decryption failed",
			"recordID", recordID.String(),
			"contentID", meta.ContentID.String(),
			"err", err)
		return Record{}, err
	}

	return Record{Meta: meta, Data: payload}, nil
}

// List returns metadata summaries for the owner's active records, newest
// first as the ledger orders them. Payloads are never fetched.
func (c *Coordinator) List(ctx context.Context, owner interfaces.Identity) (summaries []interfaces.RecordSummary, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordOp("list", err)
		metrics.ObserveOp("list", start)
	}()

	ids, err := c.ledger.PatientRecords(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	summaries = make([]interfaces.RecordSummary, 0, len(ids))
	for _, id := range ids {
		meta, err := c.ledger.RecordMeta(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching metadata for %s: %w", id, err)
		}
		if !meta.IsActive {
			continue
		}
		summaries = append(summaries, interfaces.RecordSummary{
			RecordID:   meta.RecordID,
			RecordType: meta.RecordType,
			CreatedAt:  meta.CreatedAt,
			ContentID:  meta.ContentID,
		})
	}

	return summaries, nil
}

// Revoke marks a record inactive on the ledger. Owner only; the ledger
// rejects anyone else with ErrUnauthorized.
func (c *Coordinator) Revoke(ctx context.Context, recordID interfaces.RecordID, owner interfaces.Identity) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordOp("revoke", err)
		metrics.ObserveOp("revoke", start)
	}()

	receipt, err := c.ledger.RevokeRecord(ctx, recordID, owner)
	if err != nil {
		return fmt.Errorf("revoking record: %w", err)
	}

	c.log.Info("Record revoked",
		"recordID", recordID.String(),
		"owner", owner.String(),
		"txHash", receipt.TxHash)
	return nil
}
