// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversations and wire messages. Not
// intended for production usage.
package testutil
