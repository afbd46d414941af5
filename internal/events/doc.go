// Package events publishes transfer lifecycle notifications. RabbitMQ is the
// production transport; the in-memory publisher backs tests.
package events
