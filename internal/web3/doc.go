// Package web3 defines the chain-agnostic request and response model of the
// EVM toolbox: addresses and names, the closed set of toolbox requests, the
// transaction result shape and the Toolbox interface implemented by the
// Ethereum adapter. It also loads chain endpoint definitions from YAML.
package web3
