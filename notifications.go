// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various pool events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTTxAccepted indicates a transaction entered the pool.
	NTTxAccepted NotificationType = iota

	// NTTxRemoved indicates a transaction left the pool.
	NTTxRemoved
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTTxAccepted: "NTTxAccepted",
	NTTxRemoved:  "NTTxRemoved",
}

// String returns the notification type as a human readable string.
func (t NotificationType) String() string {
	if s, ok := notificationTypeStrings[t]; ok {
		return s
	}
	return "Unknown"
}

// RemovedTx is the payload of an NTTxRemoved notification.
type RemovedTx struct {
	// TxHash identifies the removed transaction.
	TxHash chainhash.Hash

	// Reason is why the transaction left the pool.
	Reason RemovalReason
}

// Notification defines a notification that is sent to subscribers and
// consists of a notification type as well as associated data that depends
// on the type as follows:
//   - NTTxAccepted: *TxEntry
//   - NTTxRemoved:  *RemovedTx
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe registers a callback for pool events. Callbacks run
// synchronously on the mutating goroutine while the pool lock is held, so
// they must not call back into the pool; hand work off to another goroutine
// instead.
func (mp *TxMempool) Subscribe(callback NotificationCallback) {
	mp.notificationsLock.Lock()
	mp.notifications = append(mp.notifications, callback)
	mp.notificationsLock.Unlock()
}

// sendNotification fans an event out to all subscribers.
func (mp *TxMempool) sendNotification(typ NotificationType,
	data interface{}) {

	n := Notification{Type: typ, Data: data}
	mp.notificationsLock.RLock()
	for _, callback := range mp.notifications {
		callback(&n)
	}
	mp.notificationsLock.RUnlock()
}
