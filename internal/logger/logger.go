// Package logger provides the process-wide leveled logger.
//
// Formatting happens on the calling goroutine: the line is assembled into a
// byte buffer under a mutex with a timestamp and level prefix. In async mode
// a dedicated writer goroutine drains finished lines from a bounded blocking
// queue and writes them to the log file; when the queue is full, or in sync
// mode, the caller writes directly. Log files rotate when the wall date
// advances or the line count crosses maxLines, producing names of the form
// 2006_01_02.log and 2006_01_02-K.log for the K-th rollover within a day.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chen150182055/WebServer-02/internal/buffer"
	"github.com/chen150182055/WebServer-02/internal/queue"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// maxLines forces a rollover within a day once a single file grows past it.
const maxLines = 50000

var levelTitle = map[Level]string{
	LevelDebug: "[debug]: ",
	LevelInfo:  "[info] : ",
	LevelWarn:  "[warn] : ",
	LevelError: "[error]: ",
}

type log struct {
	mu        sync.Mutex
	level     Level
	open      bool
	async     bool
	dir       string
	suffix    string
	file      *os.File
	buf       *buffer.Buffer
	deque     *queue.BlockDeque[string]
	writerWG  sync.WaitGroup
	lineCount int
	day       int
}

var std = &log{level: LevelInfo, buf: buffer.New()}

// Init opens the log file under dir and enables logging. A positive
// queueSize enables async mode with a background writer; zero means every
// caller writes synchronously.
func Init(level Level, dir, suffix string, queueSize int) error {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.level = level
	std.dir = dir
	std.suffix = suffix
	std.lineCount = 0

	if queueSize > 0 {
		std.async = true
		std.deque = queue.New[string](queueSize)
		std.writerWG.Add(1)
		go std.asyncWrite()
	}

	now := time.Now()
	std.day = now.Day()
	if err := std.openFile(fileName(dir, now, suffix, 0)); err != nil {
		return err
	}
	std.open = true
	return nil
}

// SetLevel changes the minimum level that gets written.
func SetLevel(level string) {
	std.mu.Lock()
	defer std.mu.Unlock()
	switch strings.ToUpper(level) {
	case "DEBUG":
		std.level = LevelDebug
	case "INFO":
		std.level = LevelInfo
	case "WARN":
		std.level = LevelWarn
	case "ERROR":
		std.level = LevelError
	}
}

func Debug(format string, v ...any) { std.write(LevelDebug, format, v...) }
func Info(format string, v ...any)  { std.write(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { std.write(LevelWarn, format, v...) }
func Error(format string, v ...any) { std.write(LevelError, format, v...) }

// Close flushes queued lines, stops the writer, and closes the file.
func Close() {
	std.mu.Lock()
	deque := std.deque
	std.mu.Unlock()

	if deque != nil {
		for !deque.Empty() {
			deque.Flush()
			time.Sleep(time.Millisecond)
		}
		deque.Close()
		std.writerWG.Wait()
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	std.deque = nil
	std.async = false
	if std.file != nil {
		std.file.Sync()
		std.file.Close()
		std.file = nil
	}
	std.open = false
}

func (l *log) write(level Level, format string, v ...any) {
	l.mu.Lock()
	if level < l.level {
		l.mu.Unlock()
		return
	}
	if !l.open {
		// Fall back to stderr before Init or after Close.
		fmt.Fprintf(os.Stderr, "%s %s%s\n",
			time.Now().Format("2006-01-02 15:04:05.000000"), levelTitle[level], fmt.Sprintf(format, v...))
		l.mu.Unlock()
		return
	}

	now := time.Now()
	l.rotateLocked(now)
	l.lineCount++

	l.buf.AppendString(now.Format("2006-01-02 15:04:05.000000"))
	l.buf.AppendString(" ")
	l.buf.AppendString(levelTitle[level])
	l.buf.AppendString(fmt.Sprintf(format, v...))
	l.buf.AppendString("\n")
	line := l.buf.RetrieveAllToString()

	if l.async && l.deque != nil && !l.deque.Full() {
		l.mu.Unlock()
		l.deque.PushBack(line)
		return
	}
	l.file.WriteString(line)
	l.mu.Unlock()
}

// rotateLocked reopens the log file when the date changed or the current
// file is past maxLines. Caller holds l.mu.
func (l *log) rotateLocked(now time.Time) {
	if l.day == now.Day() && (l.lineCount == 0 || l.lineCount%maxLines != 0) {
		return
	}
	var name string
	if l.day != now.Day() {
		l.day = now.Day()
		l.lineCount = 0
		name = fileName(l.dir, now, l.suffix, 0)
	} else {
		name = fileName(l.dir, now, l.suffix, l.lineCount/maxLines)
	}
	l.openFile(name)
}

func fileName(dir string, now time.Time, suffix string, rollover int) string {
	date := now.Format("2006_01_02")
	if rollover > 0 {
		return filepath.Join(dir, fmt.Sprintf("%s-%d%s", date, rollover, suffix))
	}
	return filepath.Join(dir, date+suffix)
}

func (l *log) openFile(name string) error {
	if l.file != nil {
		l.file.Sync()
		l.file.Close()
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if mkErr := os.MkdirAll(filepath.Dir(name), 0o755); mkErr != nil {
			return fmt.Errorf("create log dir: %w", mkErr)
		}
		f, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	}
	l.file = f
	return nil
}

func (l *log) asyncWrite() {
	defer l.writerWG.Done()
	for {
		line, ok := l.deque.Pop()
		if !ok {
			return
		}
		l.mu.Lock()
		if l.file != nil {
			l.file.WriteString(line)
		}
		l.mu.Unlock()
	}
}
