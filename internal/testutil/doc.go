// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing sessions, transcript entries and model
// resolvers. They are not intended for production usage.
package testutil
