package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chen150182055/WebServer-02/internal/buffer"
)

func feed(s string) *buffer.Buffer {
	b := buffer.New()
	b.AppendString(s)
	return b
}

func TestParseSimpleGet(t *testing.T) {
	var r Request
	r.Reset()
	b := feed("GET /index.html HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n")

	require.Equal(t, ParseOK, r.Parse(b))
	assert.Equal(t, "GET", r.Method())
	assert.Equal(t, "/index.html", r.Path())
	assert.Equal(t, "1.1", r.Version())
	assert.Equal(t, "example.com", r.Header("host"))
	assert.True(t, r.IsKeepAlive())
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestParsePathDefaults(t *testing.T) {
	cases := map[string]string{
		"/":        "/index.html",
		"/login":   "/login.html",
		"/welcome": "/welcome.html",
		"/img.png": "/img.png",
	}
	for raw, want := range cases {
		var r Request
		r.Reset()
		b := feed("GET " + raw + " HTTP/1.1\r\n\r\n")
		require.Equal(t, ParseOK, r.Parse(b), "path %s", raw)
		assert.Equal(t, want, r.Path(), "path %s", raw)
	}
}

func TestParseSplitAcrossFeeds(t *testing.T) {
	var r Request
	r.Reset()
	b := feed("GET /index.ht")

	assert.Equal(t, ParseNeedMore, r.Parse(b))

	b.AppendString("ml HTTP/1.1\r\nHost: x")
	assert.Equal(t, ParseNeedMore, r.Parse(b))

	b.AppendString("\r\n\r\n")
	require.Equal(t, ParseOK, r.Parse(b))
	assert.Equal(t, "/index.html", r.Path())
	assert.Equal(t, "x", r.Header("Host"))
}

func TestParseMalformedRequestLine(t *testing.T) {
	var r Request
	r.Reset()
	b := feed("NOT-HTTP\r\n\r\n")
	assert.Equal(t, ParseMalformed, r.Parse(b))
}

func TestParseRejectsTraversal(t *testing.T) {
	var r Request
	r.Reset()
	b := feed("GET ../etc/passwd HTTP/1.1\r\n\r\n")
	assert.Equal(t, ParseMalformed, r.Parse(b))
}

func TestParsePostForm(t *testing.T) {
	var r Request
	r.Reset()
	body := "username=alice&password=se%26cret"
	b := feed("POST /login HTTP/1.1\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Content-Length: 33\r\n" +
		"\r\n" + body)

	require.Equal(t, ParseOK, r.Parse(b))
	assert.Equal(t, "/login.html", r.Path())
	assert.Equal(t, "alice", r.Post("username"))
	assert.Equal(t, "se&cret", r.Post("password"))
}

func TestParseBodyNeedsFullContentLength(t *testing.T) {
	var r Request
	r.Reset()
	b := feed("POST /register HTTP/1.1\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Content-Length: 20\r\n" +
		"\r\nusername=bob")

	assert.Equal(t, ParseNeedMore, r.Parse(b))
	b.AppendString("&password")
	require.Equal(t, ParseOK, r.Parse(b))
	assert.Equal(t, "bob", r.Post("username"))
}

func TestKeepAliveRequiresHTTP11(t *testing.T) {
	var r Request
	r.Reset()
	b := feed("GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	require.Equal(t, ParseOK, r.Parse(b))
	assert.False(t, r.IsKeepAlive())
}
