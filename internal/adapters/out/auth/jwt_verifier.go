package auth

import (
	"strconv"

	"github.com/dgrijalva/jwt-go"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// JWTVerifier 握手令牌校验器
// 令牌由身份服务签发，Subject 存用户ID；这里只做 HS256 验签与过期检查
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) out.TokenVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify 任何失败都折叠为 entity.ErrAuthRejected，不向客户端泄露细节
func (v *JWTVerifier) Verify(tokenStr string) (uint64, error) {
	if tokenStr == "" {
		return 0, entity.ErrAuthRejected
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &jwt.StandardClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, entity.ErrAuthRejected
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return 0, entity.ErrAuthRejected
	}

	claims, ok := tok.Claims.(*jwt.StandardClaims)
	if !ok {
		return 0, entity.ErrAuthRejected
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, entity.ErrAuthRejected
	}
	return userID, nil
}
