// Package flow contains the flow identity used as the key of the owner table
// and the header parser that extracts it from raw packets. Identities can be
// normalized so both directions of a connection produce the same key.
package flow
