// Package dispatch executes the closed set of control-plane commands against
// the queue registry and answers each request with exactly one correlated
// response.
//
// Handler failures never escape: they are classified into the protocol error
// taxonomy (not found, validation, engine) and returned as error results.
// Responses are memoised by request id for a short time so a request
// re-delivered after a reconnect is not executed twice.
package dispatch
