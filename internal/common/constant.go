package common

// Header names understood by the resource protocol. They are carried as
// plain HTTP headers and matched case-insensitively by net/http.
const (
	HeaderUsername        = "username"
	HeaderPassword        = "password"
	HeaderToken           = "token"
	HeaderKey             = "key"
	HeaderStorage         = "storage"
	HeaderIdentifier      = "identifier"
	HeaderContentType     = "content-type"
	HeaderContentLength   = "content-length"
	HeaderTransferSpeed   = "transfer-speed"
	HeaderContentEncoding = "content-encoding"
)

// AuthChallenge is advertised in WWW-Authenticate on 401 responses.
const AuthChallenge = `Token realm="resvault", header="token"`
