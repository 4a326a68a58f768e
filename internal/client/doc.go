// Package client provides a small consumer of the gate's discovery surface.
//
// It wraps resty over a retrying transport for the /json endpoints and a
// gorilla dialer for page sockets. Integration tests and external tooling
// use it to find pages and attach to them.
package client
