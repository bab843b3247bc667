package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// Roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// Audience selects which callers a guarded handler accepts.
type Audience int

const (
	// AudienceUser admits any authenticated caller.
	AudienceUser Audience = iota
	// AudienceStaff admits teachers and admins.
	AudienceStaff
	// AudienceStudent admits learners only.
	AudienceStudent
)

// JWTConfig configures access token validation.
type JWTConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// IsStaffRole reports whether role may grade and manage assessments.
func IsStaffRole(role string) bool {
	switch normalizeRole(role) {
	case RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// Authenticate validates HS256 bearer tokens and stores the caller's id and role in locals.
func Authenticate(cfg JWTConfig) fiber.Handler {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(options...)
	secret := []byte(cfg.Secret)

	return func(c *fiber.Ctx) error {
		authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		scheme, tokenString, found := strings.Cut(authorization, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenString) == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, ok := userIDFromClaims(claims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "token has no subject")
		}
		c.Locals(localUserID, userID)
		if role := roleFromClaims(claims); role != "" {
			c.Locals(localUserRole, role)
		}

		return c.Next()
	}
}

// Guard wraps a handler so only callers in the audience reach it.
func Guard(handler fiber.Handler, audience Audience) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals(localUserID) == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		role := normalizeRole(c.Locals(localUserRole))
		switch audience {
		case AudienceStaff:
			if !IsStaffRole(role) {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		case AudienceStudent:
			if role != RoleStudent {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		}

		return handler(c)
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[normalizeRole(c.Locals(localUserRole))]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func userIDFromClaims(claims jwt.MapClaims) (uint, bool) {
	for _, key := range []string{"sub", "user_id", "id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		if id, err := parseUserID(value); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

func parseUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, fmt.Errorf("invalid subject %v", v)
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type %T", value)
	}
}

// roleFromClaims reads "role", falling back to the first entry of "roles".
func roleFromClaims(claims jwt.MapClaims) string {
	if role := normalizeRole(claims["role"]); role != "" {
		return role
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, item := range roles {
			if role := normalizeRole(item); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return ""
	}
}
