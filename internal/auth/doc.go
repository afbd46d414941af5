// Package auth guards the HTTP API with static API keys. Each key maps to a
// named caller and a permission set; broadcasting transfers needs its own
// permission so read-only keys cannot move funds.
package auth
