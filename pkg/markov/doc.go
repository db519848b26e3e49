/*
Package markov provides an in-memory toolkit for training second-order Markov
chains on plain text and generating sentences from them.

A Store holds any number of named databases. Each database maps a pair of
consecutive words to every word that followed that pair in the training text,
duplicates included, so that frequent continuations are picked more often.
Generation walks a database from a random (or seed-biased) starting pair and
trims the walk back to the last sentence boundary, retrying when a walk runs
into a dead end.

Stores can be exported to and imported from a versioned JSON document, or
saved to and loaded from SQLite. Loading either replaces the store or merges
into it, in which case successor lists accumulate.
*/
package markov
