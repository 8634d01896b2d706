// Package cache provides the bounded LRU used for every kind of cached GPU
// object: buffers, textures, samplers, pipeline state and compiled shaders.
//
// An LRU maps a key to a value and calls an eviction callback whenever an
// entry leaves, so the owner can release the backend handle behind it:
//
//	shaders := cache.New[string, *Shader](256, release)
//	key := cache.FoldKey(path) + "|" + entry
//	sh, err := shaders.Get(key, compile)
//	...
//	shaders.Invalidate(key) // file changed on disk
//
// A failing factory leaves the cache untouched and its error is returned
// as-is.
//
// # Thread Safety
//
// LRU is not safe for concurrent use. It is owned by the evaluation
// goroutine; invalidation requests from other goroutines must be queued and
// applied by that owner.
package cache
