// Package certificates stores this device's private certificates and the
// public certificates of its contacts, and derives the advertisement payload
// from the active private certificate.
//
// Private certificates live in preferences and are read synchronously. Public
// certificates live in a PublicStore whose operations run on a background
// runner and complete on the caller's sequence. A side-index of public
// certificate expirations is kept in preferences and always matches the
// stored collection.
package certificates
