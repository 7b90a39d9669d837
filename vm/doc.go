// Package vm implements the fox virtual machine.
//
// This package contains:
//   - NaN-boxed value representation over a generation-checked object arena
//   - Mark-sweep garbage collection with pluggable root providers
//   - Closures, upvalues, classes, fibers, lists and maps
//   - The bytecode interpreter with per-fiber call frames
//   - A slot-based host API for embedding
package vm
