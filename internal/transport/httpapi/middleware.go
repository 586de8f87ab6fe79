package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
)

// accessLog пишет одну строку на запрос.
func accessLog(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Info("http request")
		})
	}
}

// Idempotency отдаёт сохранённый ответ на повтор запроса с тем же Idempotency-Key.
// Запросы без заголовка проходят без изменений.
type Idempotency struct {
	repo   domain.IdempotencyRepository
	clock  clock.Clock
	logger *log.Entry
}

// NewIdempotency создаёт middleware. repo == nil отключает кэширование.
func NewIdempotency(repo domain.IdempotencyRepository, clk clock.Clock, logger *log.Entry) *Idempotency {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = log.New().WithField("component", "http-idempotency")
	}
	return &Idempotency{repo: repo, clock: clk, logger: logger}
}

func (m *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if m.repo == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := readBody(w, r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		actor, _ := ActorFromContext(r.Context())
		scopedKey := domain.RequestIdempotencyKey(actor.UserID, key)
		logger := m.logger.WithField("idempotency_key", key)

		ctx := r.Context()
		record, err := m.repo.CreateProcessing(ctx, scopedKey, requestHash(r, actor.UserID, body), m.clock.Now().Add(domain.IdempotencyScopeRequest.TTL()))
		if err != nil {
			m.replay(w, logger, err, record)
			return
		}

		rec := &responseCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusOK && rec.status < http.StatusMultipleChoices {
			err = m.repo.MarkDone(ctx, scopedKey, rec.body.Bytes(), rec.status)
		} else {
			err = m.repo.MarkFailed(ctx, scopedKey, rec.body.Bytes(), rec.status)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}
	})
}

func (m *Idempotency) replay(w http.ResponseWriter, logger *log.Entry, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, domain.CategoryConflict, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Replayable():
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(idempotencyReplayHeader, "true")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)
		case record.Status == domain.IdempotencyStatusProcessing:
			respondWithError(w, http.StatusConflict, domain.CategoryConflict, "request with the same idempotency key is already processing")
		default:
			respondWithError(w, http.StatusInternalServerError, domain.CategoryInternal, "idempotency cache is empty")
		}
	case errors.Is(createErr, domain.ErrIdempotencyKeyRequired), errors.Is(createErr, domain.ErrIdempotencyScopeInvalid):
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, createErr.Error())
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		respondWithError(w, http.StatusInternalServerError, domain.CategoryInternal, "failed to initialize idempotency request")
	}
}

func requestHash(r *http.Request, userID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// responseCapture дублирует тело ответа в буфер для кэша идемпотентности.
type responseCapture struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *responseCapture) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *responseCapture) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
