// Package conv provides checked integer conversions for values read from disk.
//
// Positions, lengths and counts decoded from a volume are untrusted: a torn
// write or a corrupt node can produce values that overflow the platform int.
// Use these helpers at decode boundaries; use plain casts where the domain
// already bounds the value (loop indices, slot numbers).
package conv
