package http

import "net/http"

// forwardingHeaders are consulted in order for the caller's address.
var forwardingHeaders = []string{
	"Http-Client-Id",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-Ip",
	"Forwarded-For",
	"Forwarded",
	"Remote-Addr",
}

// remoteAddr returns the client address a proxy reported for r, or the
// address of the connection when there is none.
func remoteAddr(r *http.Request) string {
	for _, h := range forwardingHeaders {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return r.RemoteAddr
}
