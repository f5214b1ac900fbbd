// Package fallback holds static configuration for Dreo heaters whose cloud
// device record is incomplete, and merges it into such records.
//
// Device records are the generic maps produced by decoding the cloud JSON.
// Table data is never handed out by reference: lookups return copies and
// merged values are copies, so callers are free to modify what they get.
package fallback
