// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// Structural and policy errors. These are returned by the pool container,
// the replacement checker, and the persistence codec. All of them leave the
// pool unchanged and support errors.Is matching.
var (
	// ErrEntryExists is returned when inserting a transaction whose txid or
	// wtxid is already present in the pool.
	ErrEntryExists = errors.New("transaction already exists in pool")

	// ErrEntryNotFound is returned when querying or removing a transaction
	// that is not in the pool.
	ErrEntryNotFound = errors.New("transaction not found in pool")

	// ErrReplacementRejected is the base error for all replacement rule
	// violations. The specific violations below wrap it so callers can
	// match either the class or the exact rule.
	ErrReplacementRejected = errors.New("replacement rejected")

	// ErrInsufficientAbsoluteFee indicates the replacement does not pay
	// strictly more in absolute fees than the entire set of transactions
	// it would evict.
	ErrInsufficientAbsoluteFee = fmt.Errorf(
		"%w: insufficient absolute fee", ErrReplacementRejected)

	// ErrInsufficientFeeRate indicates the replacement's fee rate does not
	// strictly exceed the highest fee rate among the transactions it would
	// evict.
	ErrInsufficientFeeRate = fmt.Errorf(
		"%w: insufficient fee rate", ErrReplacementRejected)

	// ErrTooManyEvictions indicates accepting the replacement would evict
	// more transactions than the configured cap allows.
	ErrTooManyEvictions = fmt.Errorf(
		"%w: evicts too many transactions", ErrReplacementRejected)

	// ErrNewUnconfirmedInput indicates the replacement introduces more new
	// unconfirmed inputs than the configured cap allows.
	ErrNewUnconfirmedInput = fmt.Errorf(
		"%w: too many new unconfirmed inputs", ErrReplacementRejected)

	// ErrReplacementSpendsParent indicates the replacement attempts to
	// spend an output created by a transaction it would evict.
	ErrReplacementSpendsParent = fmt.Errorf(
		"%w: spends output of replaced transaction", ErrReplacementRejected)

	// ErrExceededAncestorLimit indicates accepting the transaction would
	// push its ancestor package over the configured count, size, or
	// signature operation caps.
	ErrExceededAncestorLimit = errors.New(
		"transaction exceeds ancestor limit")

	// ErrUnsupportedVersion is returned by Load when the dump carries a
	// version tag this codec does not understand. The whole load aborts.
	ErrUnsupportedVersion = errors.New("unsupported dump version")

	// ErrCorruptDump is returned by Load when the stream is truncated or
	// otherwise malformed. Transactions accepted before the corruption
	// point remain in the pool.
	ErrCorruptDump = errors.New("corrupt mempool dump")
)

// TxRuleError identifies a rule violation related to a transaction rejected
// by the validator or the relay policy. It is used to indicate that
// processing of the transaction failed due to one of the many validation
// rules. It has full support for errors.Is and errors.As, so the caller can
// ascertain the specific reason for the rule violation.
type TxRuleError struct {
	// RejectCode is the corresponding rejection code to send to the peer
	// that relayed the transaction.
	RejectCode wire.RejectCode

	// Description is an additional human readable description of the
	// rejection.
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a transaction failed due to one of the many validation rules.
// The caller can use type assertions or errors.As to determine if a failure
// was specifically due to a rule violation and use the Err field to access
// the underlying error, which will be either a TxRuleError or a wrapped
// chain-level rejection.
type RuleError struct {
	Err error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying wrapped error.
func (e RuleError) Unwrap() error {
	return e.Err
}

// txRuleError creates an underlying TxRuleError with the given a set of
// arguments and returns a RuleError that encapsulates it.
func txRuleError(c wire.RejectCode, desc string) RuleError {
	return RuleError{
		Err: TxRuleError{RejectCode: c, Description: desc},
	}
}

// IsPolicyRejection returns whether the passed error indicates the
// transaction was rejected by relay policy rather than consensus rules.
func IsPolicyRejection(err error) bool {
	code, ok := ExtractRejectCode(err)
	if !ok {
		return false
	}
	return code == wire.RejectNonstandard ||
		code == wire.RejectInsufficientFee ||
		code == wire.RejectDust
}

// ExtractRejectCode attempts to return a relevant reject code for a given
// error by examining the error for one of the rule error types.
func ExtractRejectCode(err error) (wire.RejectCode, bool) {
	var txErr TxRuleError
	if errors.As(err, &txErr) {
		return txErr.RejectCode, true
	}
	return wire.RejectInvalid, false
}
