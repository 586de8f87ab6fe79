// Package gateway содержит клиентов платёжных шлюзов: создание платежа,
// разбор подписанных webhook и возвраты.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IntentRequest — запрос на создание платежа в шлюзе. Сумма берётся из заказа.
type IntentRequest struct {
	OrderID     string
	UserID      string
	AmountMinor int64
	Currency    string
}

// Intent — созданный в шлюзе платёж, который клиент завершает на своей стороне.
type Intent struct {
	Provider        string
	GatewayOrderRef string
	ClientSecret    string
	AmountMinor     int64
	Currency        string
}

// WebhookEvent — проверенное событие шлюза.
type WebhookEvent struct {
	ID                string
	Type              string
	OrderID           string
	GatewayOrderRef   string
	GatewayPaymentRef string
	// Captured — событие подтверждает списание средств.
	Captured bool
}

// RefundResult — результат возврата.
type RefundResult struct {
	RefundRef string
	Status    string
}

// Gateway — клиент платёжного шлюза.
type Gateway interface {
	Name() string
	// SignatureHeader — заголовок, в котором шлюз передаёт подпись webhook.
	SignatureHeader() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// ParseWebhook проверяет подпись над исходными байтами тела и только
	// после этого разбирает событие. Неверная подпись: domain.ErrInvalidSignature.
	ParseWebhook(raw []byte, signature string) (WebhookEvent, error)
	Refund(ctx context.Context, paymentRef string, amountMinor int64) (RefundResult, error)
}

// Sign возвращает hex(HMAC-SHA256(secret, payload)).
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify сравнивает подпись с ожидаемой за постоянное время.
func Verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// CallbackPayload — строка, которую шлюз подписывает для клиентского callback.
func CallbackPayload(gatewayOrderRef, gatewayPaymentRef string) []byte {
	return []byte(gatewayOrderRef + "|" + gatewayPaymentRef)
}
