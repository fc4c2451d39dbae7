// Package log builds the application's slog loggers.
//
// Every logger is wrapped in a SecureHandler, which masks cookies,
// authorization headers, tokens and the passwords of URLs with userinfo
// before a record reaches its output. Site credentials from the config
// file therefore never appear in logs, even in verbose mode.
//
//	logger, closer, err := log.New(os.Stderr, log.Options{Verbose: true, File: "pagemirror.log"})
//	defer closer.Close()
//	slog.SetDefault(logger)
//
// When Options.File is set, records are also written to a size-rotated
// file.
package log
