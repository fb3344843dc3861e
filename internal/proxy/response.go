package proxy

import "net/http"

// Response is a fully buffered upstream response. It is shared between
// every caller of a coalesced fetch and must not be modified.
type Response struct {
	StatusCode int         `msgpack:"s"`
	Header     http.Header `msgpack:"h"`
	Body       []byte      `msgpack:"b"`
}
