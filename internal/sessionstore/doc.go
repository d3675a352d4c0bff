// Package sessionstore provides the scs session stores: sqlite (via sqlite3store)
// and redis. Both delete and expire records atomically, so a concurrent reader sees
// either the whole session or nothing.
package sessionstore
