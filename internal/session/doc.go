// Package session persists the login state of the API client: the bearer
// token and the user record, stored under the fixed keys KeyToken and KeyUser.
//
// A Store is created explicitly and handed to the request wrapper; nothing
// in this package is global.
package session
