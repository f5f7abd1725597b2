package wallet

import (
	"fmt"
	"io"
	"sync"

	"github.com/kartacom/tonpay/pkg/logger"
)

// Notifier surfaces failures to the user.
type Notifier interface {
	Error(title, body string)
}

// Loader drives a loading indicator.
type Loader interface {
	StartLoading()
	EndLoading(hasError bool)
}

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier reports notifications to a logger and, optionally, a writer.
type LogNotifier struct {
	lggr logger.Logger
	out  io.Writer
}

// NewLogNotifier creates a LogNotifier. out may be nil.
func NewLogNotifier(lggr logger.Logger, out io.Writer) *LogNotifier {
	return &LogNotifier{lggr: lggr.Named("notifier"), out: out}
}

func (n *LogNotifier) Error(title, body string) {
	n.lggr.Errorw(title, "body", body)
	if n.out != nil {
		fmt.Fprintf(n.out, "%s: %s\n", title, body)
	}
}

var _ Loader = (*LogLoader)(nil)

// LogLoader tracks the loading state and logs transitions.
type LogLoader struct {
	lggr logger.Logger

	mu       sync.Mutex
	loading  bool
	hasError bool
}

// NewLogLoader creates a LogLoader.
func NewLogLoader(lggr logger.Logger) *LogLoader {
	return &LogLoader{lggr: lggr.Named("loader")}
}

func (l *LogLoader) StartLoading() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loading = true
	l.hasError = false
	l.lggr.Debug("Loading started")
}

func (l *LogLoader) EndLoading(hasError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loading = false
	l.hasError = hasError
	l.lggr.Debugw("Loading ended", "hasError", hasError)
}

// Loading reports whether loading is in progress and whether the last load failed.
func (l *LogLoader) Loading() (loading bool, hasError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.loading, l.hasError
}
