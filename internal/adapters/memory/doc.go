// Package memory provides in-memory implementations of the identity store and
// the OS session manager. They back the development daemon and the tests.
package memory
