// Package auth issues and validates the bearer tokens of the local API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. Each carries a
// Role: viewers may read state, operators may also send commands. Tokens
// are minted offline with the "token" command; there is no user store.
package auth
