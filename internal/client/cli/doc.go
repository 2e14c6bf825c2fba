// Package cli implements the resvault command-line client on top of
// cobra. Every command is a single request against the server; the
// session token from register or login is kept in a credentials file so
// later invocations reuse it.
package cli
