package purchase

import (
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes bounds how much of a response body is read
const maxBodyBytes = 1 << 20

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
