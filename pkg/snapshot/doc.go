// Package snapshot moves markov stores and training text between the
// filesystem and a markov.Store. Saved files are written atomically and only
// a small set of extensions is accepted when loading or saving.
package snapshot
