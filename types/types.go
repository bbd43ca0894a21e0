// Package types is a super-package that contains all the leaf types and helpers the rendezvous layer
// shares between its parts: peer identities, contact information, wire messages and STUN parsing.
//
// This package exists to avoid import cycles, and to keep misc/"leaf" functions and types into one hierarchy.
//
// As a general rule to avoid import cycles inside this package:
//   - Only import parent packages, don't import child packages
//   - Importing from a "sibling" package (up the tree) is allowed.
package types
