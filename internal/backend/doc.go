// Package backend keeps the named execution backends the server can route
// code to ("process", "docker") and resolves the "auto" choice.
package backend
