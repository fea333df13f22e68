// Package auth authenticates operators calling the admin HTTP API.
//
// Operators present an HS256 JWT as a bearer token. The "sub" claim names
// the operator and is made available to handlers via OperatorFromContext.
// Tokens are minted with `wordchain token`, which signs with the same
// auth.jwt_secret the server verifies with.
package auth
