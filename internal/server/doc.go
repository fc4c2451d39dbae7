// Package server serves a mirror directory over HTTP for offline viewing.
//
// The mirror root holds one directory per host, so a page mirrored from
// https://site.test/en_us/ids is browsed at
// http://127.0.0.1:8080/site.test/en_us/ids/.
package server
