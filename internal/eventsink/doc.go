// Package eventsink provides node.Observer implementations that publish node
// state transitions: to a structured logger, to a socket.io server, or into
// memory for inspection in tests.
package eventsink
