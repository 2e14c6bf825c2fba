// Package client talks to a resvault server over its HTTP resource
// protocol.
//
// # Overview
//
// HTTPClient mirrors the three endpoints: /user (Register, Login,
// LoginByToken, Logout), /storage (PutValue, GetValue, DeleteValue,
// ListKeys) and /resource (Upload, Download). The session token returned
// by Register and Login is kept on the client and sent with every later
// call.
//
// # Error Handling
//
// Non-2xx answers come back as *StatusError. 401 and 404 also match the
// sentinels ErrUnauthorized and ErrNotFound with errors.Is; transport
// failures match ErrUnavailable.
package client
