// Package cache stores tool results for tools that declare a cache TTL.
//
// Keys are derived from the tool name, the calling principal and the
// canonical JSON of the bound arguments, so map ordering never splits an
// entry and one caller's results are never served to another. Errors are
// not cached, and tools tagged as having side effects are never cached.
// Concurrent misses for the same key run the tool once.
package cache
