// Package api exposes the toolbox over JSON/HTTP: the four chain tools, a
// generic execute endpoint, read access to the transfer journal, health and
// Prometheus metrics.
package api
