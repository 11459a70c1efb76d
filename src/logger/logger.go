// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/helper/gc"
)

// Logger defines the interface for logging operations.
//
// This interface supports both CLI and [MCP] server modes, allowing seamless
// switching between human-readable output and structured logging.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
type Logger interface {
	// Printf formats and prints a log message.
	Printf(format string, v ...any)
	// Println prints a log message with a newline.
	Println(v ...any)
	// SetOutput sets the output destination for the logger.
	SetOutput(w io.Writer)
}

// componentLogger is implemented by loggers able to tag entries with a component name.
type componentLogger interface {
	With(component string) Logger
}

// WithComponent returns a logger that tags every entry with component.
// Loggers that cannot carry a component are returned unchanged.
//
// Parameters:
//   - l: Parent logger (nil yields a no-op logger)
//   - component: Component name such as "validation" or "revocation"
//
// Returns:
//   - Logger: Tagged logger sharing the parent's output
func WithComponent(l Logger, component string) Logger {
	if l == nil {
		return Nop()
	}
	if c, ok := l.(componentLogger); ok {
		return c.With(component)
	}
	return l
}

// CLILogger implements Logger using the standard log package.
// It's designed for command-line interface output with human-readable formatting.
type CLILogger struct {
	logger    *log.Logger
	component string
}

// NewCLILogger creates a new CLI logger with timestamps disabled.
// This is suitable for user-facing CLI output.
func NewCLILogger() *CLILogger {
	return &CLILogger{logger: log.New(os.Stdout, "", 0)}
}

// With returns a CLI logger prefixing messages with "[component] ".
// The returned logger shares the parent's destination.
func (c *CLILogger) With(component string) Logger {
	return &CLILogger{logger: c.logger, component: component}
}

func (c *CLILogger) prefix(msg string) string {
	if c.component == "" {
		return msg
	}
	return "[" + c.component + "] " + msg
}

// Printf formats and prints a log message using fmt.Printf semantics.
func (c *CLILogger) Printf(format string, v ...any) {
	c.logger.Print(c.prefix(fmt.Sprintf(format, v...)))
}

// Println prints a log message with a newline.
func (c *CLILogger) Println(v ...any) {
	c.logger.Print(c.prefix(fmt.Sprint(v...)))
}

// SetOutput sets the output destination for the CLI logger.
func (c *CLILogger) SetOutput(w io.Writer) { c.logger.SetOutput(w) }

// mcpSink is the destination shared between an MCPLogger and its component children.
type mcpSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// MCPLogger implements Logger for [MCP] server mode.
// It suppresses output by default since MCP communication happens over stdio,
// but can be configured to write structured logs to a separate destination.
//
// MCPLogger is safe for concurrent use by multiple goroutines.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
type MCPLogger struct {
	sink      *mcpSink
	silent    bool
	component string
}

// NewMCPLogger creates a new [MCP] logger.
// By default, it's silent (output suppressed) to avoid interfering with [MCP] stdio protocol.
// Set silent=false and provide a writer to enable structured logging to a file or stderr.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
func NewMCPLogger(writer io.Writer, silent bool) *MCPLogger {
	if writer == nil {
		writer = io.Discard
	}
	return &MCPLogger{
		sink:   &mcpSink{writer: writer},
		silent: silent,
	}
}

// With returns an MCP logger emitting a "component" field on every entry.
func (m *MCPLogger) With(component string) Logger {
	return &MCPLogger{sink: m.sink, silent: m.silent, component: component}
}

// mcpEntry is one JSON log line.
type mcpEntry struct {
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

func (m *MCPLogger) emit(msg string) {
	if m.silent {
		return
	}

	data, err := json.Marshal(mcpEntry{Level: "info", Component: m.component, Message: msg})
	if err != nil {
		return
	}

	buf := gc.Default.Get()
	defer func() {
		buf.Reset()
		gc.Default.Put(buf)
	}()
	buf.Write(data)
	buf.WriteByte('\n')

	m.sink.mu.Lock()
	m.sink.writer.Write(buf.Bytes())
	m.sink.mu.Unlock()
}

// Printf formats and logs a structured message in JSON format.
// Output is suppressed if silent mode is enabled.
func (m *MCPLogger) Printf(format string, v ...any) { m.emit(fmt.Sprintf(format, v...)) }

// Println logs a structured message in JSON format.
// Output is suppressed if silent mode is enabled.
func (m *MCPLogger) Println(v ...any) { m.emit(fmt.Sprint(v...)) }

// SetOutput sets the output destination for the MCP logger and every
// component logger derived from it.
//
// SetOutput is safe for concurrent use by multiple goroutines.
func (m *MCPLogger) SetOutput(w io.Writer) {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()

	if w == nil {
		m.sink.writer = io.Discard
	} else {
		m.sink.writer = w
	}
}

// nopLogger discards everything.
type nopLogger struct{}

// Nop returns a logger that discards all output.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Printf(string, ...any) {}
func (nopLogger) Println(...any)        {}
func (nopLogger) SetOutput(io.Writer)   {}
