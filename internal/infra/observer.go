package infra

import "log/slog"

// SlogObserver forwards engine events to the structured logger.
// slog handlers never block the caller, which keeps the trading path
// free of observability stalls.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver wraps a logger as an engine observer. A nil logger
// falls back to the process default.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) LogEvent(name string, fields map[string]any) {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	o.logger.Info(name, attrs...)
}

func (o *SlogObserver) LogError(name string, err error, fields map[string]any) {
	attrs := make([]any, 0, len(fields)*2+2)
	attrs = append(attrs, "error", err)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	o.logger.Error(name, attrs...)
}
