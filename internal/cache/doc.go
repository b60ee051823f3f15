// Package cache provides a small generic LRU used for hot lookup tables
// such as the type registry's name and reflect.Type caches.
package cache
