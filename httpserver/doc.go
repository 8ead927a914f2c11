/*
Package httpserver implements the HTTP front of the record custody
backend.

It exposes the record API (create, read, list, revoke), the access
workflow API (request, grant), health and drain endpoints, and a
Prometheus metrics listener. Caller identity comes from the
X-Identity-Address header set by the authenticating reverse proxy.

The package also includes an Admin API used to unlock a ShamirKMS at
startup: administrators submit their master seed shares over
signature-authenticated requests until the reconstruction threshold is
reached.

# Error Responses

Domain failures map onto distinct HTTP statuses so clients can tell
"not found" from "not allowed" from "inactive":

  - 403: access denied, or an owner-only operation by a non-owner
  - 404: unknown record or missing content
  - 410: revoked record
  - 409: ledger rejected the transaction (duplicate record ID)
  - 503: ledger or storage unreachable
*/
package httpserver
