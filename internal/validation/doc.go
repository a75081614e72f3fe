// Package validation holds the approval state machine for logged actions.
//
// An action's approval status is never stored on the action itself. It is derived from
// the append-only ledger of entries recorded against it: the latest entry, ordered by
// creation time then per-action sequence, is authoritative and an empty ledger means
// pending. Everything here is pure; persistence lives in the services package.
package validation
