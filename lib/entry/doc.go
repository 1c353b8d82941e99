// Package entry defines the unit of replicated state and how it is hashed, sealed and stored.
//
// An Entry is valid if its hash matches H(canonical(value) + author + timestamp + nonce),
// its signature over the hash verifies against the author and, for namespaced keys,
// the embedded address equals the author. Proof of work is expressed as a number
// of leading '0' characters of the hex hash.
//
// Key conventions:
//
//	":" + address + "." + rest   only address may write the key
//	"==" + rest                  the key is write-once
//
// Record wraps the stored entry of a key together with the merged CRDT change set.
package entry
