// Package database stores the manifest of mirror runs in SQLite.
//
// Each run records the pages it scraped and the outcome of every asset it
// dispatched, so a later `pagemirror history` can list what was mirrored,
// when, and which assets failed. The database is a single file opened
// through the CGO-free modernc.org/sqlite driver.
package database
