// Package http implements the request parser, response composer, and
// per-connection state machine for the server's HTTP/1.1 subset.
package http

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/chen150182055/WebServer-02/internal/buffer"
)

type parseState int

const (
	stateRequestLine parseState = iota
	stateHeaders
	stateBody
	stateFinish
)

// ParseResult is the outcome of feeding accumulated input to the parser.
type ParseResult int

const (
	// ParseOK means a complete request is framed and ready to process.
	ParseOK ParseResult = iota
	// ParseNeedMore means the input does not yet hold a full request.
	ParseNeedMore
	// ParseMalformed means the input can never become a valid request.
	ParseMalformed
)

var (
	requestLineRE = regexp.MustCompile(`^([^ ]+) ([^ ]+) HTTP/([^ ]+)$`)
	headerRE      = regexp.MustCompile(`^([^:]+): ?(.*)$`)
)

// defaultPages are URL paths that resolve to a same-named .html file.
var defaultPages = map[string]bool{
	"/index":    true,
	"/register": true,
	"/login":    true,
	"/welcome":  true,
	"/video":    true,
	"/picture":  true,
}

// Request incrementally parses one HTTP request from a connection's input
// buffer. State survives across Parse calls so a request split over several
// reads picks up where the previous feed stopped; consumed lines are
// retrieved from the buffer as they complete.
type Request struct {
	state      parseState
	method     string
	path       string
	version    string
	headers    map[string]string
	post       map[string]string
	contentLen int
}

func (r *Request) Reset() {
	r.state = stateRequestLine
	r.method = ""
	r.path = ""
	r.version = ""
	r.headers = make(map[string]string)
	r.post = nil
	r.contentLen = 0
}

func (r *Request) Method() string  { return r.method }
func (r *Request) Path() string    { return r.path }
func (r *Request) Version() string { return r.version }

// Post returns the form field value for key, or "" if absent.
func (r *Request) Post(key string) string {
	return r.post[key]
}

// Header returns a header value by case-insensitive name.
func (r *Request) Header(name string) string {
	return r.headers[strings.ToLower(name)]
}

func (r *Request) IsKeepAlive() bool {
	return r.Header("Connection") == "keep-alive" && r.version == "1.1"
}

func (r *Request) finished() bool {
	return r.state == stateFinish
}

// Parse consumes as much of b as the current state allows.
func (r *Request) Parse(b *buffer.Buffer) ParseResult {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	for {
		switch r.state {
		case stateRequestLine:
			line, ok := takeLine(b)
			if !ok {
				return ParseNeedMore
			}
			if !r.parseRequestLine(line) {
				return ParseMalformed
			}
			r.state = stateHeaders

		case stateHeaders:
			line, ok := takeLine(b)
			if !ok {
				return ParseNeedMore
			}
			if line == "" {
				if r.method == "POST" && r.contentLen > 0 {
					r.state = stateBody
				} else {
					r.state = stateFinish
				}
				continue
			}
			if !r.parseHeader(line) {
				return ParseMalformed
			}

		case stateBody:
			if b.ReadableBytes() < r.contentLen {
				return ParseNeedMore
			}
			body := string(b.Peek()[:r.contentLen])
			b.Retrieve(r.contentLen)
			if !r.parseForm(body) {
				return ParseMalformed
			}
			r.state = stateFinish

		case stateFinish:
			return ParseOK
		}
	}
}

// takeLine pops one CRLF-terminated line from the buffer, without the
// terminator.
func takeLine(b *buffer.Buffer) (string, bool) {
	readable := b.Peek()
	i := bytes.Index(readable, []byte("\r\n"))
	if i < 0 {
		return "", false
	}
	line := string(readable[:i])
	b.Retrieve(i + 2)
	return line, true
}

func (r *Request) parseRequestLine(line string) bool {
	m := requestLineRE.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	r.method, r.path, r.version = m[1], m[2], m[3]
	return r.normalizePath()
}

// normalizePath cleans the URL path and applies the default-page mapping.
// Dot-dot segments never escape the document root after cleaning, but a
// request that still names a parent segment is rejected outright.
func (r *Request) normalizePath() bool {
	if !strings.HasPrefix(r.path, "/") {
		return false
	}
	r.path = path.Clean(r.path)
	if strings.Contains(r.path, "..") {
		return false
	}
	if r.path == "/" {
		r.path = "/index.html"
	} else if defaultPages[r.path] {
		r.path += ".html"
	}
	return true
}

func (r *Request) parseHeader(line string) bool {
	m := headerRE.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	name := strings.ToLower(m[1])
	r.headers[name] = m[2]
	if name == "content-length" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 0 {
			return false
		}
		r.contentLen = n
	}
	return true
}

func (r *Request) parseForm(body string) bool {
	if r.Header("Content-Type") != "application/x-www-form-urlencoded" {
		return true
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return false
	}
	r.post = make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			r.post[k] = v[0]
		}
	}
	return true
}
