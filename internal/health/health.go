// Package health отдаёт состояние процесса и его зависимостей
// для /healthz, /readyz и /livez.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status — состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Report — тело ответа /healthz.
type Report struct {
	Status        Status    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version,omitempty"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	Checks        []Check   `json:"checks,omitempty"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// FuncChecker — проверка на основе функции. Критичная проверка переводит сервис
// в unhealthy, некритичная только в degraded.
type FuncChecker struct {
	name     string
	critical bool
	fn       func(ctx context.Context) error
}

// NewCheck создаёт критичную проверку.
func NewCheck(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, critical: true, fn: fn}
}

// NewOptionalCheck создаёт некритичную проверку (например, Kafka).
func NewOptionalCheck(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (p *FuncChecker) Check(ctx context.Context) Check {
	started := time.Now()
	err := p.fn(ctx)
	check := Check{
		Name:       p.name,
		Status:     StatusHealthy,
		Critical:   p.critical,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		check.Message = err.Error()
		check.Status = StatusDegraded
		if p.critical {
			check.Status = StatusUnhealthy
		}
	}
	return check
}

// Handler агрегирует зарегистрированные проверки.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	timeout  time.Duration
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
	}
}

// Register добавляет или заменяет проверку с именем name.
func (h *Handler) Register(name string, checker Checker) {
	if checker == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Evaluate выполняет все проверки и сводит их в отчёт.
func (h *Handler) Evaluate(ctx context.Context) Report {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := Report{
		Status:        StatusHealthy,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	for _, name := range names {
		check := checkers[name].Check(ctx)
		if check.Name == "" {
			check.Name = name
		}
		report.Checks = append(report.Checks, check)
		switch {
		case check.Status == StatusUnhealthy:
			report.Status = StatusUnhealthy
		case check.Status == StatusDegraded && report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

// ServeHTTP отдаёт полный отчёт; 503 только при unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Ready отвечает 200, пока нет unhealthy-компонентов.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Live всегда отвечает 200: процесс жив, раз обрабатывает запрос.
func Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
