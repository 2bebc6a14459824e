package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"reconciler/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // int64
	CtxUserRoleKey = "user_role" // string
)

var errInvalidToken = errors.New("invalid token")

// 照合ツールを叩く運用者
type Operator struct {
	ID   int64
	Role string
}

// 管理API（照合ツール）用のbearer JWT検証ミドルウェア。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	secret := []byte(cfg.JWTSecret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			op, err := parseOperator(raw, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, op.ID)
			c.Set(CtxUserRoleKey, op.Role)

			return next(c)
		}
	}
}

// OperatorFrom はAuthJWTが入れた運用者を返す。
func OperatorFrom(c echo.Context) (Operator, bool) {
	id, ok := c.Get(CtxUserIDKey).(int64)
	if !ok || id <= 0 {
		return Operator{}, false
	}
	role, _ := c.Get(CtxUserRoleKey).(string)
	return Operator{ID: id, Role: role}, true
}

// "Bearer xxx" からtokenを抜く
func bearerToken(authz string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(authz), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

// HS256だけ受け付ける。sub と role は必須。
func parseOperator(raw string, secret []byte) (Operator, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return Operator{}, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Operator{}, errInvalidToken
	}

	id, err := parseUserID(claims["sub"])
	if err != nil || id <= 0 {
		return Operator{}, errInvalidToken
	}
	role, ok := claims["role"].(string)
	if !ok || strings.TrimSpace(role) == "" {
		return Operator{}, errInvalidToken
	}

	return Operator{ID: id, Role: strings.ToUpper(strings.TrimSpace(role))}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// subをint64に変換する
func parseUserID(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.New("invalid sub")
	}
}
