// Package identity implements Vigil's credential verifier.
//
// It owns usernames and password hashes and answers exactly two questions:
// "do these credentials match a user" and "can this username be created".
// Session state lives elsewhere; this package is the named external
// collaborator the session facade authenticates against.
//
// This package is intentionally dependency-light and security-first.
package identity
