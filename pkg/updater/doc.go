// Package updater drives a resumable bulk update.
//
// A Driver reads the input CSV in file order. Rows at or before the
// checkpoint's position are skipped. Every other row is parsed and written
// through a RemoteUpdater, and the checkpoint is moved to the row's id once
// the write is confirmed. Invalid rows and failed writes are logged, counted
// and skipped without moving the checkpoint.
//
// Rows are processed strictly one at a time: the checkpoint must never point
// past a row whose write has not been confirmed.
package updater
