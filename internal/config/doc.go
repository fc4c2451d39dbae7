// Package config holds pagemirror's configuration: the flat Config populated
// from CLI flags, the optional YAML config file with per-site settings, and
// the XDG directories used for the config file and the manifest database.
package config
