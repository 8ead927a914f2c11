package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/medledger/record-custody-backend/access"
	"github.com/medledger/record-custody-backend/cmd/flags"
	"github.com/medledger/record-custody-backend/coordinator"
	"github.com/medledger/record-custody-backend/httpserver"
	"github.com/medledger/record-custody-backend/interfaces"
	"github.com/medledger/record-custody-backend/kms"
	"github.com/medledger/record-custody-backend/ledger"
	"github.com/medledger/record-custody-backend/storage"
)

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.RPCAddrFlag,
	flags.ContractAddrFlag,
	&cli.StringFlag{
		Name:  "operator-key",
		Usage: "hex-encoded private key of the ledger operator account",
	},
	&cli.StringFlag{
		Name:  "storage",
		Value: "file:///var/lib/record-custody",
		Usage: "comma-separated storage backend URIs (ipfs://, s3://, vault://, file://)",
	},
	&cli.StringFlag{
		Name:  "kms-type",
		Value: "simple",
		Usage: "type of KMS to use: 'simple' or 'shamir'",
	},
	&cli.StringFlag{
		Name:  "simple-kms-seed",
		Usage: "hex-encoded 32-byte master seed for SimpleKMS (required if kms-type is 'simple')",
	},
	&cli.StringFlag{
		Name:  "admin-keys-file",
		Usage: "JSON file with admin public keys for ShamirKMS (required if kms-type is 'shamir')",
	},
	&cli.IntFlag{
		Name:  "shamir-threshold",
		Value: 3,
		Usage: "number of shares required to unlock the ShamirKMS",
	},
	&cli.IntFlag{
		Name:  "unlock-timeout",
		Value: 300,
		Usage: "timeout in seconds for ShamirKMS unlock at startup",
	},
	&cli.BoolFlag{
		Name:  "dev",
		Value: false,
		Usage: "run against an in-memory ledger instead of an RPC node",
	},
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "custody-server",
		Usage:  "Serve the medical record custody API",
		Flags:  serverFlags,
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger)

	recordLedger, err := setupLedger(cCtx, logger)
	if err != nil {
		return err
	}

	storageFactory := storage.NewStorageBackendFactory(logger)
	backend, err := storageFactory.CreateMultiBackend(strings.Split(cCtx.String("storage"), ","))
	if err != nil {
		logger.Error("Failed to create storage backend", "err", err)
		return err
	}

	custodyKMS, admin, err := setupKMS(cCtx, logger)
	if err != nil {
		return err
	}

	handler := httpserver.NewHandler(
		coordinator.New(recordLedger, backend, custodyKMS, logger),
		access.NewWorkflow(recordLedger, logger),
		logger,
	)

	server, err := httpserver.New(cfg, handler, admin)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	// A Shamir KMS starts locked. Admins must submit their shares before
	// record operations can be served.
	if admin != nil {
		timeout := time.Duration(cCtx.Int("unlock-timeout")) * time.Second
		logger.Info("Waiting for KMS unlock", "timeout", timeout)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := admin.WaitForUnlock(ctx); err != nil {
			logger.Error("KMS unlock failed", "err", err)
			server.Shutdown()
			return err
		}
		logger.Info("KMS unlocked, record API operational")
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func setupLedger(cCtx *cli.Context, logger *slog.Logger) (interfaces.Ledger, error) {
	if cCtx.Bool("dev") {
		logger.Info("Running with in-memory ledger (dev mode)")
		return ledger.NewMemLedger(), nil
	}

	contractAddrHex := cCtx.String(flags.ContractAddrFlag.Name)
	if contractAddrHex == "" {
		return nil, errors.New("contract-addr is required outside dev mode")
	}
	contractAddr, err := interfaces.NewIdentityFromHex(contractAddrHex)
	if err != nil {
		return nil, fmt.Errorf("invalid contract-addr: %w", err)
	}

	operatorKeyHex := cCtx.String("operator-key")
	if operatorKeyHex == "" {
		return nil, errors.New("operator-key is required outside dev mode")
	}
	operatorKey, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator-key: %w", err)
	}

	rpcAddr := cCtx.String(flags.RPCAddrFlag.Name)
	logger.Info("Connecting to ledger RPC", "address", rpcAddr)
	ethClient, err := ethclient.Dial(rpcAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain ID: %w", err)
	}

	return ledger.NewClient(ethClient, contractAddr, operatorKey, chainID, logger)
}

func setupKMS(cCtx *cli.Context, logger *slog.Logger) (interfaces.CustodyKMS, *httpserver.AdminHandler, error) {
	switch kmsType := cCtx.String("kms-type"); kmsType {
	case "simple":
		seedHex := cCtx.String("simple-kms-seed")
		if seedHex == "" {
			return nil, nil, errors.New("simple-kms-seed is required for simple KMS")
		}

		seed, err := hex.DecodeString(seedHex)
		if err != nil || len(seed) != 32 {
			return nil, nil, fmt.Errorf("invalid simple-kms-seed, must be 64 hex chars: %v", err)
		}

		simpleKMS, err := kms.NewSimpleKMS(seed)
		if err != nil {
			return nil, nil, err
		}

		logger.Info("SimpleKMS initialized")
		return simpleKMS, nil, nil

	case "shamir":
		adminKeysFile := cCtx.String("admin-keys-file")
		if adminKeysFile == "" {
			return nil, nil, errors.New("admin-keys-file is required for shamir KMS")
		}

		adminKeysData, err := os.Open(adminKeysFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open admin keys file: %w", err)
		}
		defer adminKeysData.Close()

		adminKeys, err := httpserver.LoadAdminKeys(adminKeysData)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load admin keys: %w", err)
		}
		logger.Info("Admin keys loaded", "count", len(adminKeys))

		shamirKMS, err := kms.NewShamirKMS(cCtx.Int("shamir-threshold"))
		if err != nil {
			return nil, nil, err
		}

		admin := httpserver.NewAdminHandler(shamirKMS, adminKeys, logger)
		logger.Info("ShamirKMS initialized, waiting for admin shares")
		return shamirKMS, admin, nil

	default:
		return nil, nil, fmt.Errorf("invalid kms-type: %s", kmsType)
	}
}
