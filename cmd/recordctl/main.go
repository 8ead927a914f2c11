package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/medledger/record-custody-backend/api/clients"
	"github.com/medledger/record-custody-backend/interfaces"
)

var flagAPIAddr = &cli.StringFlag{
	Name:  "api-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "custody server API address",
}
var flagIdentity = &cli.StringFlag{
	Name:     "identity",
	Required: true,
	Usage:    "caller's ledger address, 0x-prefixed hex",
}
var flagRecordID = &cli.StringFlag{
	Name:     "record-id",
	Required: true,
	Usage:    "record identifier",
}

func main() {
	app := &cli.App{
		Name:  "recordctl",
		Usage: "Interact with the medical record custody API",
		Flags: []cli.Flag{flagAPIAddr, flagIdentity},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Seal and anchor a new record from a file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "path to the record payload"},
					&cli.StringFlag{Name: "type", Value: "note", Usage: "record type tag"},
				},
				Action: createRecord,
			},
			{
				Name:   "get",
				Usage:  "Fetch and decrypt a record",
				Flags:  []cli.Flag{flagRecordID},
				Action: getRecord,
			},
			{
				Name:   "list",
				Usage:  "List the caller's active records",
				Action: listRecords,
			},
			{
				Name:  "request-access",
				Usage: "File an access request for a record",
				Flags: []cli.Flag{
					flagRecordID,
					&cli.StringFlag{Name: "purpose", Usage: "reason for the request"},
				},
				Action: requestAccess,
			},
			{
				Name:  "grant-access",
				Usage: "Grant another identity read access",
				Flags: []cli.Flag{
					flagRecordID,
					&cli.StringFlag{Name: "grantee", Required: true, Usage: "grantee's ledger address"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "grant lifetime"},
				},
				Action: grantAccess,
			},
			{
				Name:   "revoke",
				Usage:  "Mark a record inactive",
				Flags:  []cli.Flag{flagRecordID},
				Action: revokeRecord,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) (*clients.RecordsClient, error) {
	identity, err := interfaces.NewIdentityFromHex(cCtx.String(flagIdentity.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}
	return clients.NewRecordsClient(cCtx.String(flagAPIAddr.Name), identity), nil
}

func createRecord(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(cCtx.String("file"))
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}

	created, err := client.Create(context.Background(), payload, cCtx.String("type"))
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"recordId":  created.RecordID.String(),
		"contentId": created.ContentID,
		"txHash":    created.TxHash,
	})
}

func getRecord(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	record, err := client.Get(context.Background(), interfaces.RecordID(cCtx.String(flagRecordID.Name)))
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"recordId":   record.RecordID,
		"recordType": record.RecordType,
		"owner":      record.Owner,
		"timestamp":  record.CreatedAt,
		"data":       string(record.Data),
	})
}

func listRecords(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	records, err := client.List(context.Background())
	if err != nil {
		return err
	}
	return printJSON(records)
}

func requestAccess(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	requestID, err := client.RequestAccess(context.Background(),
		interfaces.RecordID(cCtx.String(flagRecordID.Name)), cCtx.String("purpose"))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"requestId": requestID.String()})
}

func grantAccess(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	grantee, err := interfaces.NewIdentityFromHex(cCtx.String("grantee"))
	if err != nil {
		return fmt.Errorf("invalid grantee: %w", err)
	}

	expiry := time.Now().Add(cCtx.Duration("ttl"))
	if err := client.GrantAccess(context.Background(),
		interfaces.RecordID(cCtx.String(flagRecordID.Name)), grantee, expiry); err != nil {
		return err
	}
	return printJSON(map[string]any{"granted": true, "expiry": expiry})
}

func revokeRecord(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	if err := client.Revoke(context.Background(),
		interfaces.RecordID(cCtx.String(flagRecordID.Name))); err != nil {
		return err
	}
	return printJSON(map[string]any{"revoked": true})
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
