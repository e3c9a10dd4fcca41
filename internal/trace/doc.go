// Package trace records evaluated ticks and gives them a stable identity.
//
// A Tick is the externally visible result of one Evaluate call: the inputs
// as presented, the state before and after, the transition taken and the
// output vector. Ticks serialize to canonical JSON (sorted keys, NFC
// strings, shortest float form) so that identical runs hash identically;
// TableHash and TraceHash are SHA-256 over that form with a domain prefix.
package trace
