// Package main provides the entry point for the pagemirror CLI.
//
// pagemirror saves rendered web pages together with every asset they load
// and serves the result offline.
//
// Usage:
//
//	pagemirror scrape --website https://site.test en_us/ids en_us/about
//	pagemirror serve 8080
//
// See --help for all available options.
package main

func main() {
	Execute()
}
