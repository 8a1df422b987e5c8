// Package pickle implements the binary wire layer of an object-graph
// serialization stack: a pair of stateful Writer/Reader sessions that turn an
// ordered stream of typed primitives, nested object headers, and sequence
// frames into a compact self-describing byte stream, and back.
//
// The layer is driven by an external pickling engine through a strictly
// ordered call protocol: bytes appear on the wire in exactly the order
// operations are invoked, and the reader must mirror that order to
// reconstruct the same values. Streams record the producing machine's byte
// order and are rejected, not converted, when it differs from the reader's.
//
// Sessions are constructed through a named Format provider; BclBinary is the
// built-in implementation.
package pickle
