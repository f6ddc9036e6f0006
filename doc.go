// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mempool provides a policy-enforced pool of unconfirmed bitcoin
transactions.

The pool tracks spend dependencies between unconfirmed transactions,
maintains cached ancestor and descendant fee statistics for each entry,
and exposes fee-rate ordered views suitable for block template
construction.  Acceptance applies replace-by-fee and package limit
policies, eviction trims the pool back under its memory budget by worst
descendant score, and the contents can be persisted across restarts in a
compact serialized form.
*/
package mempool
