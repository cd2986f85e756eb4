package ledger

import "errors"

var (
	ErrInvalidMsg         = errors.New("ledger: invalid message")
	ErrPayloadTooLarge    = errors.New("ledger: payload too large")
	ErrCommitFailed       = errors.New("ledger: commit failed")
	ErrContractNotFound   = errors.New("ledger: contract not found")
	ErrCodeNotFound       = errors.New("ledger: code not found")
	ErrUnauthorized       = errors.New("ledger: unauthorized")
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrCallDepthExceeded  = errors.New("ledger: call depth exceeded")
	ErrMigrateUnsupported = errors.New("ledger: contract does not support migrate")
	ErrReplyUnsupported   = errors.New("ledger: contract does not handle replies")
	ErrInvalidReply       = errors.New("ledger: invalid reply")
	ErrInvalidMigration   = errors.New("ledger: invalid migration")
	ErrClosed             = errors.New("ledger: chain closed")
	ErrStateNotFound      = errors.New("ledger: state not found")
)
