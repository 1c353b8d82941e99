// Package verify implements the gate every incoming entry passes before it is
// relayed, stored or delivered to listeners.
//
// The base pipeline checks required fields, timestamp freshness, namespace
// ownership, proof of work and hash integrity, and finally the signature.
// Custom verificators add application rules per key prefix; they see the new
// entry together with the record currently stored for the key, and any single
// failing verificator vetoes the write.
//
// Results are a closed taxonomy (Result). Callers drop every entry that is not
// Verified; nothing is reported back to the sender.
package verify
