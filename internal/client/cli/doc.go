// Package cli implements the interactive sshvault client: a small REPL over
// the auth and profile services, with a background reconciler that keeps the
// local session store converged with the remote authority while the server
// is reachable.
package cli
