package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dailyFile is shared by a handler and every handler derived from it.
type dailyFile struct {
    mutex    sync.Mutex
    file     *os.File
    fileName string
    logDir   string
    prefix   string
    now      func() time.Time
}

type DailyFileHandler struct {
    out            *dailyFile
    attrs          []slog.Attr
    defaultHandler slog.Handler
}

func NewDailyFileHandler(logDir string, opts *slog.HandlerOptions) (*DailyFileHandler, error) {
    // Create logs directory if it doesn't exist
    if err := os.MkdirAll(logDir, 0755); err != nil {
        return nil, fmt.Errorf("failed to create log directory: %w", err)
    }

    h := &DailyFileHandler{
        out: &dailyFile{
            logDir: logDir,
            prefix: "claimdesk",
            now:    time.Now,
        },
        defaultHandler: slog.NewTextHandler(os.Stdout, opts),
    }

    if err := h.out.rotateIfNeeded(); err != nil {
        return nil, err
    }

    return h, nil
}

func (f *dailyFile) rotateIfNeeded() error {
    f.mutex.Lock()
    defer f.mutex.Unlock()

    fileName := fmt.Sprintf("%s-%s.log", f.prefix, f.now().Format("2006-01-02"))
    if fileName == f.fileName {
        return nil
    }

    // Close existing file if open
    if f.file != nil {
        f.file.Close()
    }

    file, err := os.OpenFile(filepath.Join(f.logDir, fileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
    if err != nil {
        return fmt.Errorf("failed to open log file: %w", err)
    }

    f.file = file
    f.fileName = fileName
    return nil
}

func (f *dailyFile) write(line string) error {
    f.mutex.Lock()
    defer f.mutex.Unlock()
    _, err := f.file.WriteString(line)
    return err
}

func (h *DailyFileHandler) Handle(ctx context.Context, r slog.Record) error {
    if err := h.out.rotateIfNeeded(); err != nil {
        // If rotation fails, at least log to stdout
        return h.defaultHandler.Handle(ctx, r)
    }

    timeStr := r.Time.Format("2006/01/02 15:04:05.000")
    level := r.Level.String()

    var attrs string
    for _, a := range h.attrs {
        attrs += fmt.Sprintf(" %s=%v", a.Key, a.Value)
    }
    r.Attrs(func(a slog.Attr) bool {
        attrs += fmt.Sprintf(" %s=%v", a.Key, a.Value)
        return true
    })

    logLine := fmt.Sprintf("[%s] %-5s %s%s\n", timeStr, level, r.Message, attrs)
    err := h.out.write(logLine)

    // Also log to default handler (stdout)
    if err2 := h.defaultHandler.Handle(ctx, r); err2 != nil {
        if err == nil {
            err = err2
        }
    }

    return err
}

func (h *DailyFileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
    merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
    merged = append(merged, h.attrs...)
    merged = append(merged, attrs...)
    return &DailyFileHandler{
        out:            h.out,
        attrs:          merged,
        defaultHandler: h.defaultHandler.WithAttrs(attrs),
    }
}

func (h *DailyFileHandler) WithGroup(name string) slog.Handler {
    return &DailyFileHandler{
        out:            h.out,
        attrs:          h.attrs,
        defaultHandler: h.defaultHandler.WithGroup(name),
    }
}

func (h *DailyFileHandler) Enabled(ctx context.Context, level slog.Level) bool {
    return h.defaultHandler.Enabled(ctx, level)
}

// Close closes the current log file.
func (h *DailyFileHandler) Close() error {
    h.out.mutex.Lock()
    defer h.out.mutex.Unlock()
    if h.out.file == nil {
        return nil
    }
    err := h.out.file.Close()
    h.out.file = nil
    h.out.fileName = ""
    return err
}

// NewLogger builds the application logger writing to logDir and stdout.
func NewLogger(logDir string, level slog.Level) (*slog.Logger, *DailyFileHandler, error) {
    fileHandler, err := NewDailyFileHandler(logDir, &slog.HandlerOptions{Level: level})
    if err != nil {
        return nil, nil, err
    }
    return slog.New(fileHandler), fileHandler, nil
}
