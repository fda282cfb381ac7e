package models

// ServerVersion is the monotonic counter assigned by the remote authority on
// every accepted write. Zero means the record has never been synced.
type ServerVersion int64

// ClientVersion is the monotonic counter assigned locally on every local
// mutation. It is an independent counter from ServerVersion.
type ClientVersion int64

// VersionPair carries both counters for a record. The distinct underlying
// types make it a compile error to compare a server version against a client
// version directly.
type VersionPair struct {
	Server ServerVersion
	Client ClientVersion
}

// Synced reports whether the record has ever been accepted by the remote
// authority.
func (v VersionPair) Synced() bool {
	return v.Server > 0
}

// Bump returns a copy with the client counter incremented. Used on every
// local mutation, including soft-delete.
func (v VersionPair) Bump() VersionPair {
	return VersionPair{Server: v.Server, Client: v.Client + 1}
}

// WithServer returns a copy carrying the server counter confirmed by the
// remote authority.
func (v VersionPair) WithServer(s ServerVersion) VersionPair {
	return VersionPair{Server: s, Client: v.Client}
}
