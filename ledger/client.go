package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/medledger/record-custody-backend/interfaces"
)

// Client implements interfaces.Ledger against the records contract. The
// backend submits transactions under a single operator key; acting
// identities (patients, grantees) travel as explicit call arguments and
// the contract enforces ownership rules on them.
type Client struct {
	contract *bind.BoundContract
	abi      abi.ABI
	ec       *ethclient.Client
	address  common.Address
	operator common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	log      *slog.Logger
}

// NewClient creates a ledger client for the records contract at the given
// address. The operator key signs all submitted transactions; chainID
// must match the connected chain.
func NewClient(ec *ethclient.Client, contractAddr interfaces.ContractAddress, operatorKey *ecdsa.PrivateKey, chainID *big.Int, log *slog.Logger) (*Client, error) {
	if operatorKey == nil {
		return nil, errors.New("ledger: operator key is required")
	}
	if chainID == nil {
		return nil, errors.New("ledger: chain ID is required")
	}

	parsedABI := mustParseABI()
	address := common.BytesToAddress(contractAddr.Bytes())

	return &Client{
		contract: bind.NewBoundContract(address, parsedABI, ec, ec, ec),
		abi:      parsedABI,
		ec:       ec,
		address:  address,
		operator: crypto.PubkeyToAddress(operatorKey.PublicKey),
		key:      operatorKey,
		chainID:  chainID,
		log:      log,
	}, nil
}

// AnchorRecord anchors a record in a single atomic contract call. The
// contract rejects an already-anchored record ID, which surfaces as
// ErrLedgerRejected.
func (c *Client) AnchorRecord(ctx context.Context, recordID interfaces.RecordID, contentID interfaces.ContentID, custodyKeyBlob []byte, recordType string, owner interfaces.Identity) (interfaces.Receipt, error) {
	return c.transact(ctx, "createRecord",
		recordID.String(),
		[32]byte(contentID),
		custodyKeyBlob,
		recordType,
		common.BytesToAddress(owner.Bytes()))
}

// RevokeRecord marks an anchored record inactive. Owner only.
func (c *Client) RevokeRecord(ctx context.Context, recordID interfaces.RecordID, owner interfaces.Identity) (interfaces.Receipt, error) {
	return c.transact(ctx, "revokeRecord",
		recordID.String(),
		common.BytesToAddress(owner.Bytes()))
}

// FileAccessRequest files a durable access request. The contract treats a
// duplicate request ID as a no-op, so retries are safe.
func (c *Client) FileAccessRequest(ctx context.Context, requestID interfaces.RequestID, recordID interfaces.RecordID, purpose string, requester interfaces.Identity) error {
	_, err := c.transact(ctx, "requestAccess",
		requestID.String(),
		recordID.String(),
		purpose,
		common.BytesToAddress(requester.Bytes()))
	return err
}

// GrantAccess records a time-bounded read grant. The contract reverts
// when grantor is not the record owner; that surfaces as ErrUnauthorized
// without mutating grant state.
func (c *Client) GrantAccess(ctx context.Context, recordID interfaces.RecordID, grantee interfaces.Identity, expiry time.Time, grantor interfaces.Identity) (interfaces.Receipt, error) {
	return c.transact(ctx, "grantAccess",
		recordID.String(),
		common.BytesToAddress(grantee.Bytes()),
		big.NewInt(expiry.Unix()),
		common.BytesToAddress(grantor.Bytes()))
}

// CheckAccess reports whether caller may read the record. Pure read, no
// side effects; grant expiry is evaluated by the contract against chain
// time.
func (c *Client) CheckAccess(ctx context.Context, recordID interfaces.RecordID, caller interfaces.Identity) (bool, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasAccess",
		recordID.String(),
		common.BytesToAddress(caller.Bytes()))
	if err != nil {
		return false, c.classifyCallError(err)
	}

	allowed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hasAccess result type %T", out[0])
	}
	return allowed, nil
}

// RecordMeta returns the authoritative anchored metadata. A record the
// ledger has never seen comes back with the zero owner address and maps
// to ErrRecordUnknown; a revoked record is returned with IsActive=false.
func (c *Client) RecordMeta(ctx context.Context, recordID interfaces.RecordID) (interfaces.RecordMeta, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getRecord", recordID.String())
	if err != nil {
		return interfaces.RecordMeta{}, c.classifyCallError(err)
	}

	if len(out) != 6 {
		return interfaces.RecordMeta{}, fmt.Errorf("unexpected getRecord result arity %d", len(out))
	}

	contentID := out[0].([32]byte)
	custodyKey := out[1].([]byte)
	recordType := out[2].(string)
	patient := out[3].(common.Address)
	isActive := out[4].(bool)
	createdAt := out[5].(*big.Int)

	owner, err := interfaces.NewIdentityFromBytes(patient.Bytes())
	if err != nil {
		return interfaces.RecordMeta{}, err
	}
	if owner.IsZero() {
		return interfaces.RecordMeta{}, interfaces.ErrRecordUnknown
	}

	return interfaces.RecordMeta{
		RecordID:       recordID,
		ContentID:      interfaces.ContentID(contentID),
		CustodyKeyBlob: custodyKey,
		RecordType:     recordType,
		Owner:          owner,
		IsActive:       isActive,
		CreatedAt:      time.Unix(createdAt.Int64(), 0).UTC(),
	}, nil
}

// PatientRecords enumerates every record ID ever anchored by the owner,
// inactive ones included.
func (c *Client) PatientRecords(ctx context.Context, owner interfaces.Identity) ([]interfaces.RecordID, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPatientRecords",
		common.BytesToAddress(owner.Bytes()))
	if err != nil {
		return nil, c.classifyCallError(err)
	}

	raw, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected getPatientRecords result type %T", out[0])
	}

	ids := make([]interfaces.RecordID, len(raw))
	for i, id := range raw {
		ids[i] = interfaces.RecordID(id)
	}
	return ids, nil
}

// transact runs the two-phase cost model and submits one state-changing
// call: pack, estimate gas at a freshly fetched price, sign, send, and
// wait for the receipt. The estimate and price are never reused across
// attempts; callers retrying a failed anchor must re-check RecordMeta
// first.
func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (interfaces.Receipt, error) {
	start := time.Now()

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return interfaces.Receipt{}, fmt.Errorf("packing %s call: %w", method, err)
	}

	// Phase one: current price, then cost estimate at that price. A
	// stale price risks rejection or overpayment, so both are fetched
	// immediately before submission.
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return interfaces.Receipt{}, fmt.Errorf("%w: fetching gas price: %v", interfaces.ErrLedgerUnavailable, err)
	}

	gasLimit, err := c.ec.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.operator,
		To:       &c.address,
		GasPrice: gasPrice,
		Data:     input,
	})
	if err != nil {
		// Estimation executes the call, so contract-rule violations
		// (duplicate anchor, non-owner grant) surface here as reverts.
		return interfaces.Receipt{}, classifyRevert(method, err)
	}

	// Phase two: submit with the estimated cost.
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return interfaces.Receipt{}, fmt.Errorf("building transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasPrice = gasPrice
	opts.GasLimit = gasLimit

	tx, err := c.contract.RawTransact(opts, input)
	if err != nil {
		return interfaces.Receipt{}, fmt.Errorf("%w: submitting %s: %v", interfaces.ErrLedgerUnavailable, method, err)
	}

	receipt, err := bind.WaitMined(ctx, c.ec, tx)
	if err != nil {
		return interfaces.Receipt{}, fmt.Errorf("%w: awaiting %s receipt: %v", interfaces.ErrLedgerUnavailable, method, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return interfaces.Receipt{}, fmt.Errorf("%w: %s transaction reverted", interfaces.ErrLedgerRejected, method)
	}

	c.log.Debug("Ledger transaction mined",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
		slog.Duration("duration", time.Since(start)))

	return interfaces.Receipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// classifyRevert maps the contract's revert reasons onto the error
// taxonomy; anything else at estimation time is a transport problem.
func classifyRevert(method string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, revertRecordExists):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrLedgerRejected, method, err)
	case strings.Contains(msg, revertNotOwner):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrUnauthorized, method, err)
	case strings.Contains(msg, revertRecordUnknown):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrRecordUnknown, method, err)
	case strings.Contains(msg, "execution reverted"):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrLedgerRejected, method, err)
	default:
		return fmt.Errorf("%w: estimating %s: %v", interfaces.ErrLedgerUnavailable, method, err)
	}
}

func (c *Client) classifyCallError(err error) error {
	if strings.Contains(err.Error(), revertRecordUnknown) {
		return interfaces.ErrRecordUnknown
	}
	return fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
}

var _ interfaces.Ledger = (*Client)(nil)
