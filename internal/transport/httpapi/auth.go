package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type actorContextKey struct{}

// WithActor кладёт аутентифицированного пользователя в контекст запроса.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext достаёт пользователя, положенного middleware аутентификации.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, false
	}
	return actor, true
}

// Authenticator проверяет bearer-токены HS256. Выпуск токенов (логин) живёт
// в отдельном сервисе; здесь только проверка и IssueToken для локальной отладки.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	logger *log.Entry
}

// NewAuthenticator создаёт проверку токенов с общим секретом.
func NewAuthenticator(secret string, logger *log.Entry) *Authenticator {
	if logger == nil {
		logger = log.New().WithField("component", "http-auth")
	}
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		logger: logger,
	}
}

// Require пропускает запрос дальше, только если токен валиден.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			respondWithError(w, http.StatusUnauthorized, domain.CategoryForbidden, "not authorized, no token")
			return
		}

		actor, err := a.Parse(tokenStr)
		if err != nil {
			a.logger.WithError(err).WithField("path", r.URL.Path).Debug("token verification failed")
			respondWithError(w, http.StatusUnauthorized, domain.CategoryForbidden, "not authorized, token failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireAdmin пропускает только администраторов. Ставится после Require.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, domain.CategoryForbidden, domain.ErrUnauthenticated.Error())
			return
		}
		if !actor.IsAdmin() {
			respondWithError(w, http.StatusForbidden, domain.CategoryForbidden, "not authorized as an admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Parse проверяет подпись и срок действия токена и возвращает пользователя.
// Роль берётся из claim "role"; для старых токенов учитывается "isAdmin".
func (a *Authenticator) Parse(tokenStr string) (domain.Actor, error) {
	if len(a.secret) == 0 {
		return domain.Actor{}, errors.New("jwt secret is not configured")
	}

	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return domain.Actor{}, err
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		subject, _ = claims["id"].(string)
	}
	if strings.TrimSpace(subject) == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}

	email, _ := claims["email"].(string)
	role := domain.RoleCustomer
	if r, _ := claims["role"].(string); strings.EqualFold(r, string(domain.RoleAdmin)) {
		role = domain.RoleAdmin
	}
	if isAdmin, _ := claims["isAdmin"].(bool); isAdmin {
		role = domain.RoleAdmin
	}

	return domain.Actor{UserID: subject, Email: email, Role: role}, nil
}

// IssueToken подписывает токен для actor.
func (a *Authenticator) IssueToken(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   actor.UserID,
		"email": actor.Email,
		"role":  string(actor.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// actorOrFail возвращает пользователя из контекста или отвечает 401.
func actorOrFail(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, domain.CategoryForbidden, domain.ErrUnauthenticated.Error())
		return domain.Actor{}, false
	}
	return actor, true
}
