// Package toolbox wraps the chain adapter with the transfer journal, event
// publication, per-sender submission ordering, metrics and alerting. It is
// the single entry point used by the HTTP API.
package toolbox
