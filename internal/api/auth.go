package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/internal/rate"
	"github.com/Checker-Finance/navi/pkg/model"
)

const (
	localActorID   = "actor_id"
	localActorRole = "actor_role"

	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// ActorAuth resolves the acting user of a request.
//
// With a secret configured it requires an HS256 bearer token whose "sub" claim
// is the user id and whose optional "role" claim is the role. Without a secret
// the user id is taken from X-Actor-ID. X-Actor-Role fills the role when the
// token does not carry one.
type ActorAuth struct {
	secret []byte
}

func NewActorAuth(secret string) *ActorAuth {
	return &ActorAuth{secret: []byte(secret)}
}

func (a *ActorAuth) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var userID, role string

		if len(a.secret) == 0 {
			userID = strings.TrimSpace(c.Get(HeaderActorID))
			if userID == "" {
				return fiber.NewError(fiber.StatusUnauthorized, "missing "+HeaderActorID+" header")
			}
		} else {
			claims, err := a.parse(c.Get(fiber.HeaderAuthorization))
			if err != nil {
				return err
			}
			userID, _ = claims["sub"].(string)
			role, _ = claims["role"].(string)
			if userID == "" {
				return fiber.NewError(fiber.StatusUnauthorized, "token has no subject")
			}
		}

		if role == "" {
			role = c.Get(HeaderActorRole)
		}

		c.Locals(localActorID, userID)
		if r, ok := model.RoleFromString(role); ok {
			c.Locals(localActorRole, r)
		}
		return c.Next()
	}
}

func (a *ActorAuth) parse(auth string) (jwt.MapClaims, error) {
	if auth == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token signing method")
		}
		return a.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// RateLimit throttles requests per acting user. It must run after Protect.
func RateLimit(mgr *rate.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if mgr == nil {
			return c.Next()
		}
		key, _ := c.Locals(localActorID).(string)
		if key == "" {
			key = c.IP()
		}
		if !mgr.Allow(key) {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}

func actorFrom(c *fiber.Ctx) navi.Actor {
	id, _ := c.Locals(localActorID).(string)
	role, _ := c.Locals(localActorRole).(model.Role)
	return navi.Actor{UserID: id, Role: role}
}
