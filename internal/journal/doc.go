// Package journal records every transfer request and its outcome. Entries are
// created pending and move to exactly one terminal state.
package journal
