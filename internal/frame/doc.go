// Package frame paces CPU recording against GPU execution.
//
// A [Pacer] owns N command lists, one per frame slot, and the fence values of
// their last submissions. Submitting a slot advances to the next one and, if
// the GPU has not yet finished that slot's previous submission, blocks until
// it has before the list is reset. Objects that in-flight work may still
// reference are handed to [Pacer.Retain] and released once the fence passes
// the submission that used them.
//
// [Ring] hands out 512-byte-aligned offsets in a fixed staging buffer and
// wraps to zero at the end. [DescriptorRing] recycles a fixed table of
// descriptors in the same order. Neither checks for in-flight use of the
// region it hands out; frame pacing bounds how far ahead the CPU can get.
//
// None of the types here are safe for concurrent use.
package frame
