// Package testbuild builds and runs C++ test binaries, rebuilding only
// the ones whose sources or headers changed.
package testbuild

// Version is the testbuild release version.
const Version = "0.3.0"
