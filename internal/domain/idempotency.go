package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — ответ сохранён и может быть отдан повторно.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработка завершилась ошибкой, ответ с ошибкой сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyScope разделяет пространства ключей. Ключ всегда начинается
// с префикса своей области: "request:" или "webhook:".
type IdempotencyScope string

const (
	// IdempotencyScopeRequest — заголовок Idempotency-Key клиента, уникален в пределах пользователя.
	IdempotencyScopeRequest IdempotencyScope = "request"
	// IdempotencyScopeWebhook — id события платёжного шлюза.
	IdempotencyScopeWebhook IdempotencyScope = "webhook"
)

const (
	requestKeyTTL = 24 * time.Hour
	// Шлюзы повторяют доставку webhook до трёх суток.
	webhookKeyTTL = 72 * time.Hour
)

// IdempotencyRecord хранит результат обработки клиентского запроса
// или события шлюза.
type IdempotencyRecord struct {
	Key          string
	Scope        IdempotencyScope
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RequestIdempotencyKey строит ключ клиентского запроса.
// Пустой ключ клиента даёт пустую строку.
func RequestIdempotencyKey(userID, clientKey string) string {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		return ""
	}
	return string(IdempotencyScopeRequest) + ":" + strings.TrimSpace(userID) + ":" + clientKey
}

// WebhookIdempotencyKey строит ключ события шлюза.
func WebhookIdempotencyKey(eventID string) string {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ""
	}
	return string(IdempotencyScopeWebhook) + ":" + eventID
}

// ScopeOfKey определяет область ключа по префиксу.
func ScopeOfKey(key string) (IdempotencyScope, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrIdempotencyKeyRequired
	}
	prefix, rest, ok := strings.Cut(key, ":")
	if !ok || strings.TrimSpace(rest) == "" {
		return "", ErrIdempotencyScopeInvalid
	}
	scope := IdempotencyScope(prefix)
	if !scope.Valid() {
		return "", ErrIdempotencyScopeInvalid
	}
	return scope, nil
}

// Valid проверяет, что область поддерживается.
func (s IdempotencyScope) Valid() bool {
	return s == IdempotencyScopeRequest || s == IdempotencyScopeWebhook
}

// TTL возвращает срок хранения ключа области.
func (s IdempotencyScope) TTL() time.Duration {
	if s == IdempotencyScopeWebhook {
		return webhookKeyTTL
	}
	return requestKeyTTL
}

// Clone возвращает копию записи с собственным телом ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	r.ResponseBody = append([]byte(nil), r.ResponseBody...)
	return r
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Expired сообщает, что запись можно удалить.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Reclaimable сообщает, что повторная доставка может забрать ключ себе.
// Это касается только неудачно обработанных событий шлюза: клиентский
// запрос с ошибкой отдаёт сохранённый ответ.
func (r IdempotencyRecord) Reclaimable() bool {
	return r.Scope == IdempotencyScopeWebhook && r.Status == IdempotencyStatusFailed
}

// Replayable сообщает, что сохранённый ответ можно отдать повторно.
func (r IdempotencyRecord) Replayable() bool {
	return (r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed) && r.HTTPStatus != 0
}
