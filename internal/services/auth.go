package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/requestdata"
)

type JWTClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AdminOpenGrant allows a privileged join into a CLOSED room. Grants live in
// the shared store under {ns}:admin-open-token:{token} with a TTL; legacy
// grants arrive as signed tokens instead and are accepted as a fallback.
type AdminOpenGrant struct {
	RoomID    uuid.UUID `json:"room_id"`
	GrantedBy string    `json:"granted_by,omitempty"`
}

type AuthService interface {
	VerifyToken(tokenString string) (*requestdata.RequestData, error)
	ResolveAdminOpenToken(ctx context.Context, token string) (*AdminOpenGrant, error)
}

type authService struct {
	log          *logger.Logger
	rdb          *goredis.Client
	namespace    string
	jwtSecretKey string
}

func NewAuthService(log *logger.Logger, rdb *goredis.Client, namespace, jwtSecretKey string) AuthService {
	return &authService{
		log:          log.With("service", "AuthService"),
		rdb:          rdb,
		namespace:    namespace,
		jwtSecretKey: jwtSecretKey,
	}
}

// VerifyToken validates the bearer token presented at connection time and
// returns the identity it carries.
func (as *authService) VerifyToken(tokenString string) (*requestdata.RequestData, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("Invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("Invalid user id in token: %w", err)
	}
	return &requestdata.RequestData{
		UserID:      userID,
		Email:       claims.Email,
		Role:        claims.Role,
		TokenString: tokenString,
	}, nil
}

func (as *authService) ResolveAdminOpenToken(ctx context.Context, token string) (*AdminOpenGrant, error) {
	if token == "" {
		return nil, fmt.Errorf("missing admin open token")
	}
	key := as.namespace + ":admin-open-token:" + token
	raw, err := as.rdb.Get(ctx, key).Result()
	if err == nil {
		var grant AdminOpenGrant
		if jErr := json.Unmarshal([]byte(raw), &grant); jErr != nil {
			return nil, fmt.Errorf("Malformed admin open grant: %w", jErr)
		}
		return &grant, nil
	}
	if err != goredis.Nil {
		return nil, fmt.Errorf("Failed to read admin open grant: %w", err)
	}

	// Legacy path: the grant itself is a short-lived signed token.
	parsed, pErr := jwt.ParseWithClaims(token, &legacyOpenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if pErr != nil {
		return nil, fmt.Errorf("Invalid admin open token: %w", pErr)
	}
	claims, ok := parsed.Claims.(*legacyOpenClaims)
	if !ok || !parsed.Valid || !claims.AdminOpen {
		return nil, fmt.Errorf("Invalid admin open token")
	}
	roomID, rErr := uuid.Parse(claims.RoomID)
	if rErr != nil {
		return nil, fmt.Errorf("Invalid room id in admin open token: %w", rErr)
	}
	return &AdminOpenGrant{RoomID: roomID, GrantedBy: claims.Subject}, nil
}

type legacyOpenClaims struct {
	RoomID    string `json:"room_id"`
	AdminOpen bool   `json:"admin_open"`
	jwt.RegisteredClaims
}
