package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/medledger/record-custody-backend/api/clients"
	"github.com/medledger/record-custody-backend/httpserver"
	"github.com/medledger/record-custody-backend/kms"
)

var flagServerAddr = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080/admin",
	Usage: "custody server admin API address",
}
var flagAdminID = &cli.StringFlag{
	Name:  "admin-id",
	Usage: "administrator identifier registered with the server",
}
var flagAdminPrivkey = &cli.StringFlag{
	Name:  "admin-privkey-file",
	Value: "admin-private.pem",
	Usage: "path to admin private key",
}
var flagAdminPubkey = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.pem",
	Usage: "path to admin public key",
}
var flagShareFile = &cli.StringFlag{
	Name:  "share-file",
	Value: "seed-share.b64",
	Usage: "path to this admin's master seed share",
}
var flagThreshold = &cli.IntFlag{
	Name:  "threshold",
	Value: 3,
	Usage: "number of shares required to reconstruct the seed",
}
var flagTotalShares = &cli.IntFlag{
	Name:  "total-shares",
	Value: 5,
	Usage: "total number of shares to generate",
}

func main() {
	app := &cli.App{
		Name:  "custody-admin",
		Usage: "Administer the custody KMS master seed",
		Commands: []*cli.Command{
			{
				Name:   "generate-keypair",
				Usage:  "Generate admin credentials for the KMS admin API",
				Flags:  []cli.Flag{flagAdminPrivkey, flagAdminPubkey},
				Action: generateKeypair,
			},
			{
				Name:   "generate-seed",
				Usage:  "Generate a master seed and split it into admin shares",
				Flags:  []cli.Flag{flagThreshold, flagTotalShares},
				Action: generateSeed,
			},
			{
				Name:   "submit-share",
				Usage:  "Submit this admin's share to unlock the server KMS",
				Flags:  []cli.Flag{flagServerAddr, flagAdminID, flagAdminPrivkey, flagShareFile},
				Action: submitShare,
			},
			{
				Name:   "status",
				Usage:  "Check whether the server KMS is unlocked",
				Flags:  []cli.Flag{flagServerAddr},
				Action: status,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func generateKeypair(cCtx *cli.Context) error {
	privPEM, pubPEM, err := httpserver.GenerateAdminKeyPair()
	if err != nil {
		return err
	}

	if err := os.WriteFile(cCtx.String(flagAdminPrivkey.Name), []byte(privPEM), 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(cCtx.String(flagAdminPubkey.Name), []byte(pubPEM), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	fmt.Printf("Wrote %s and %s\n", cCtx.String(flagAdminPrivkey.Name), cCtx.String(flagAdminPubkey.Name))
	fmt.Println("Register the public key in the server's admin-keys-file:")
	fmt.Println(pubPEM)
	return nil
}

func generateSeed(cCtx *cli.Context) error {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("generating seed: %w", err)
	}

	shares, err := kms.SplitMasterKey(seed, cCtx.Int(flagTotalShares.Name), cCtx.Int(flagThreshold.Name))
	if err != nil {
		return err
	}

	// A SimpleKMS deployment takes the seed directly; Shamir
	// deployments distribute the shares and discard the seed.
	fmt.Printf("master seed (hex): %s\n", hex.EncodeToString(seed))
	for i, share := range shares {
		fmt.Printf("share %d: %s\n", i+1, base64.StdEncoding.EncodeToString(share))
	}
	fmt.Println("Distribute one share per administrator over a secure channel, then destroy this output.")
	return nil
}

func submitShare(cCtx *cli.Context) error {
	adminID := cCtx.String(flagAdminID.Name)
	if adminID == "" {
		return fmt.Errorf("admin-id is required")
	}

	privPEM, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}
	privateKey, err := httpserver.ParsePrivateKey(privPEM)
	if err != nil {
		return err
	}

	shareB64, err := os.ReadFile(cCtx.String(flagShareFile.Name))
	if err != nil {
		return fmt.Errorf("reading share file: %w", err)
	}
	share, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(shareB64)))
	if err != nil {
		return fmt.Errorf("decoding share: %w", err)
	}

	client := clients.NewAdminClient(cCtx.String(flagServerAddr.Name), adminID, privateKey)
	message, err := client.SubmitShare(share)
	if err != nil {
		return err
	}

	fmt.Println(message)
	return nil
}

func status(cCtx *cli.Context) error {
	client := clients.NewAdminClient(cCtx.String(flagServerAddr.Name), "", nil)
	state, err := client.GetStatus()
	if err != nil {
		return err
	}

	out, _ := json.Marshal(map[string]string{"state": state})
	fmt.Println(string(out))
	return nil
}
