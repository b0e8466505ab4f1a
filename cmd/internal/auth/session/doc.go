// Package session is the operation surface of Vigil: it composes the
// credential verifier, the session registry, and the notification
// broadcaster into the Login / Register / Logout / LogoutAll / OpenWatch
// operations consumed by the HTTP layer.
package session
