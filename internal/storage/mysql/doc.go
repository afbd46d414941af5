// Package mysql persists the transfer journal in MySQL. It owns the
// connection pool, the embedded schema migrations and the queries behind
// journal.Store.
package mysql
