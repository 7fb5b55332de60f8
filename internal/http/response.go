package http

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/chen150182055/WebServer-02/internal/buffer"
	"github.com/chen150182055/WebServer-02/internal/logger"
)

var suffixType = map[string]string{
	".html":  "text/html",
	".xml":   "text/xml",
	".xhtml": "application/xhtml+xml",
	".txt":   "text/plain",
	".rtf":   "application/rtf",
	".pdf":   "application/pdf",
	".word":  "application/nsword",
	".png":   "image/png",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".au":    "audio/basic",
	".mpeg":  "video/mpeg",
	".mpg":   "video/mpeg",
	".avi":   "video/x-msvideo",
	".gz":    "application/x-gzip",
	".tar":   "application/x-tar",
	".css":   "text/css",
	".js":    "text/javascript",
}

var codeStatus = map[int]string{
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	500: "Internal Server Error",
}

// codePath maps error codes to their static error pages under the document
// root. Codes without a page fall back to a generated body.
var codePath = map[int]string{
	400: "/400.html",
	403: "/403.html",
	404: "/404.html",
}

// Response composes one HTTP response: status line and headers go into the
// connection's output buffer, the body is a memory-mapped file segment
// exposed separately for the gathered write.
type Response struct {
	code      int
	keepAlive bool
	path      string
	srcDir    string
	mmFile    []byte
	fileSize  int64
}

func (r *Response) Init(srcDir, reqPath string, keepAlive bool, code int) {
	r.Unmap()
	r.srcDir = srcDir
	r.path = reqPath
	r.keepAlive = keepAlive
	r.code = code
	r.fileSize = 0
}

func (r *Response) Code() int       { return r.code }
func (r *Response) KeepAlive() bool { return r.keepAlive }

// File returns the mapped body segment, or nil when the body was written
// inline.
func (r *Response) File() []byte {
	return r.mmFile
}

// Unmap releases the mapped file segment. Safe to call repeatedly.
func (r *Response) Unmap() {
	if r.mmFile != nil {
		unix.Munmap(r.mmFile)
		r.mmFile = nil
	}
}

// Make resolves the target file, rewrites error codes to their error pages,
// and writes status line plus headers into buf. On success the body is
// mapped and exposed through File.
func (r *Response) Make(buf *buffer.Buffer) {
	if r.code >= 500 {
		r.addState(buf)
		r.addHeader(buf)
		r.errorContent(buf, "Internal error")
		return
	}
	if r.code == 0 || r.code == 200 {
		if info, err := os.Stat(r.fullPath()); err != nil || info.IsDir() {
			r.code = 404
		} else if info.Mode().Perm()&0o004 == 0 {
			r.code = 403
		} else {
			r.code = 200
		}
	}
	r.errorPage()
	r.addState(buf)
	r.addHeader(buf)
	r.addContent(buf)
}

func (r *Response) fullPath() string {
	return filepath.Join(r.srcDir, r.path)
}

// errorPage swaps the target for the code's static error page when one is
// configured and present.
func (r *Response) errorPage() {
	p, ok := codePath[r.code]
	if !ok {
		return
	}
	r.path = p
	if info, err := os.Stat(r.fullPath()); err == nil && !info.IsDir() {
		r.fileSize = info.Size()
	}
}

func (r *Response) addState(buf *buffer.Buffer) {
	status, ok := codeStatus[r.code]
	if !ok {
		r.code = 400
		status = codeStatus[400]
	}
	buf.AppendString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.code, status))
}

func (r *Response) addHeader(buf *buffer.Buffer) {
	buf.AppendString("Connection: ")
	if r.keepAlive {
		buf.AppendString("keep-alive\r\n")
		buf.AppendString("keep-alive: max=6, timeout=120\r\n")
	} else {
		buf.AppendString("close\r\n")
	}
	buf.AppendString("Content-type: " + r.fileType() + "\r\n")
}

func (r *Response) addContent(buf *buffer.Buffer) {
	f, err := os.Open(r.fullPath())
	if err != nil {
		r.errorContent(buf, "File NotFound!")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		if err != nil {
			r.errorContent(buf, "File NotFound!")
			return
		}
		buf.AppendString("Content-length: 0\r\n\r\n")
		return
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		logger.Warn("mmap %s: %v", r.fullPath(), err)
		r.errorContent(buf, "File NotFound!")
		return
	}
	r.mmFile = data
	r.fileSize = info.Size()
	buf.AppendString(fmt.Sprintf("Content-length: %d\r\n\r\n", info.Size()))
}

func (r *Response) fileType() string {
	if t, ok := suffixType[strings.ToLower(filepath.Ext(r.path))]; ok {
		return t
	}
	return "text/plain"
}

// errorContent writes a generated HTML body directly into buf when no file
// can back the response.
func (r *Response) errorContent(buf *buffer.Buffer, message string) {
	status, ok := codeStatus[r.code]
	if !ok {
		status = "Bad Request"
	}
	body := fmt.Sprintf(
		"<html><title>Error</title><body bgcolor=\"ffffff\">%d : %s\n<p>%s</p><hr><em>WebServer</em></body></html>",
		r.code, status, message)
	buf.AppendString(fmt.Sprintf("Content-length: %d\r\n\r\n", len(body)))
	buf.AppendString(body)
}
