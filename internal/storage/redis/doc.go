// Package redis provides the cross-process sender lock that keeps broadcasts
// from one address strictly ordered when several daemons share a wallet.
package redis
