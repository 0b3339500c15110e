// Package logging provides opt-in file-based logging with rotation for Cividex.
// When the --debug flag is set, comprehensive logs are written to ~/.cividex/logs/
// for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only.
// In MCP stdio mode logs go exclusively to the file so the protocol stream
// on stdout stays clean.
package logging
