// Package presence tracks which server instance holds each socket connection
// and which recipient identity the connection is bound to. Records are
// ephemeral Redis hashes used for operational visibility; the delivery path
// never consults them.
package presence
