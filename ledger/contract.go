package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// recordsContractABI is the ABI of the records contract. The contract
// enforces the two invariants the application must not be trusted with:
// a record ID is anchored at most once, and only the anchored owner can
// grant access or revoke. Reverts carry the reason strings matched in
// classifyRevert.
const recordsContractABI = `[
	{
		"type": "function",
		"name": "createRecord",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "recordId", "type": "string"},
			{"name": "contentId", "type": "bytes32"},
			{"name": "custodyKey", "type": "bytes"},
			{"name": "recordType", "type": "string"},
			{"name": "patient", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "revokeRecord",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "recordId", "type": "string"},
			{"name": "patient", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "requestAccess",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "requestId", "type": "string"},
			{"name": "recordId", "type": "string"},
			{"name": "purpose", "type": "string"},
			{"name": "requester", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "grantAccess",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "recordId", "type": "string"},
			{"name": "grantee", "type": "address"},
			{"name": "expiry", "type": "uint256"},
			{"name": "grantor", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "hasAccess",
		"stateMutability": "view",
		"inputs": [
			{"name": "recordId", "type": "string"},
			{"name": "caller", "type": "address"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "getRecord",
		"stateMutability": "view",
		"inputs": [{"name": "recordId", "type": "string"}],
		"outputs": [
			{"name": "contentId", "type": "bytes32"},
			{"name": "custodyKey", "type": "bytes"},
			{"name": "recordType", "type": "string"},
			{"name": "patient", "type": "address"},
			{"name": "isActive", "type": "bool"},
			{"name": "createdAt", "type": "uint256"}
		]
	},
	{
		"type": "function",
		"name": "getPatientRecords",
		"stateMutability": "view",
		"inputs": [{"name": "patient", "type": "address"}],
		"outputs": [{"name": "", "type": "string[]"}]
	}
]`

// Revert reason strings emitted by the records contract.
const (
	revertRecordExists  = "record already exists"
	revertNotOwner      = "not record owner"
	revertRecordUnknown = "record does not exist"
)

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(recordsContractABI))
	if err != nil {
		panic("ledger: invalid records contract ABI: " + err.Error())
	}
	return parsed
}
