// Package report writes run summaries.
//
// Writers render a model.RunSummary as plain text for the terminal,
// Markdown for sharing, or JSON for tools. They implement the Writer
// interface and can be combined with MultiWriter.
package report
