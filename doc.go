// Package zk is a client for a hierarchical, strongly-consistent coordination
// service. It maintains a logical session across TCP endpoint failures,
// multiplexes concurrent requests onto a single connection, and delivers
// server-side watch notifications to handlers in order relative to replies.
package zk
