// Package registry implements the per-loader class resolution engine.
//
// An Engine turns class bytes, or a request by type symbol, into a
// defined Class in three phases:
//   - decode: bytes to a classfile.RawDescriptor (CreateRawDescriptor)
//   - link: supertypes resolved into a LinkedClass (CreateLinkedClass)
//   - define: supertypes resolved as Classes, access and sealing checked,
//     the class registered by name (DefineClass)
//
// Each engine keeps two caches keyed by symbol identity. The defined
// cache holds registered classes for the loader's lifetime; the
// transitional cache holds linked nodes only until their type is defined.
// Reads of both are lock-free. Misses are serialized per symbol, so
// unrelated names never wait on each other.
//
// Every request carries a Resolution, which holds the chain of types being
// linked on that request and reports a type reached again through its own
// supertypes as a circularity. Cycles that span two concurrent requests
// are not detected; the requests block on each other's locks until their
// contexts are done.
package registry
