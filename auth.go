package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const CLAIMS_CONTEXT contextKey = "claims"

// Roles. Observers may watch the turret; only operators may move it, drive the
// relays, resync or send raw frames.
const (
	ROLE_OBSERVER = "observer"
	ROLE_OPERATOR = "operator"
)

var (
	JWT_HMAC_SECRET []byte        = []byte("xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI=")
	JWT_LIFESPAN    time.Duration = time.Hour
)

var (
	JWTEmpty         = errors.New("Bearer token not provided")
	ErrEmptyPassword = errors.New("password must not be empty")
	ErrUnknownRole   = errors.New("unknown role")
	ErrOperatorOnly  = errors.New("the operator role is required to control the turret")
)

//---
// Structs
//

// User is someone allowed to log in to the turret. Role decides what they may do.
type User struct {
	ID       int    `storm:"id,increment"`
	Email    string `storm:"unique"`
	Name     string
	Password string
	Role     string
}

func newUser(email, password, role string) (u *User, err error) {
	if role != ROLE_OBSERVER && role != ROLE_OPERATOR {
		return nil, ErrUnknownRole
	}

	u = &User{Email: email, Name: email, Role: role}
	if err = u.SetPassword([]byte(password)); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword stores the bcrypt hash of pass. The stored hash is left alone on error.
func (u *User) SetPassword(pass []byte) error {
	if len(pass) == 0 {
		return ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword(pass, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// Compares User.Password with the provided plain text.
// Returns values directly as provided by the bcrypt library for downstream processing.
func (u *User) VerifyPassword(pass []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), pass)
}

func (u *User) CanOperate() bool {
	return u.Role == ROLE_OPERATOR
}

// TurretClaims are carried by every token. The role is copied from the user at issue
// time and re-read from the database on refresh.
type TurretClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *TurretClaims) CanOperate() bool {
	return c.Role == ROLE_OPERATOR
}

//---
// Generic payloads
//---

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (l *LoginPayload) Bind(r *http.Request) error {
	if l.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

type JWTPayload struct {
	SignedToken string `json:"token"`
	Role        string `json:"role"`
}

//---
// Helper functions
//

func newJWT(user *User) (ts string, err error) {
	now := time.Now().UTC()
	claims := TurretClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ENV.JWT_ISSUER,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(JWT_LIFESPAN)),
			Subject:   user.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(JWT_HMAC_SECRET)
}

func parseJWT(tokenStr string) (*TurretClaims, error) {
	claims := &TurretClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return JWT_HMAC_SECRET, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// tokenFromRequest looks in the query (websockets cannot set headers from a
// browser), then the Authorization header, then the jwt cookie.
func tokenFromRequest(r *http.Request) string {
	if tokenStr := r.URL.Query().Get("jwt"); tokenStr != "" {
		return tokenStr
	}

	bearer := r.Header.Get("Authorization")
	if len(bearer) > 7 && strings.ToUpper(bearer[0:6]) == "BEARER" {
		return bearer[7:]
	}

	if cookie, err := r.Cookie("jwt"); err == nil {
		return cookie.Value
	}
	return ""
}

// claimsFrom returns the claims ValidateJWT stored on the request, if any.
func claimsFrom(r *http.Request) (*TurretClaims, bool) {
	claims, ok := r.Context().Value(CLAIMS_CONTEXT).(*TurretClaims)
	return claims, ok
}

func lookupUser(email string) (*User, error) {
	var user User
	if err := ENV.DB.One("Email", email, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

//---
// Views
//---

// Login looks up a user, verifies password and returns a token carrying their role.
func Login(w http.ResponseWriter, r *http.Request) {
	data := &LoginPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	user, err := lookupUser(data.Email)
	if err != nil {
		if err == storm.ErrNotFound {
			render.Render(w, r, ErrNotFound)
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}

	if err = user.VerifyPassword([]byte(data.Password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			render.Render(w, r, ErrPermissionDenied(errors.New("Invalid password")))
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}

	tokenString, err := newJWT(user)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	ENV.Log.Info().Str("user", user.Email).Str("role", user.Role).Msg("login")
	render.JSON(w, r, JWTPayload{SignedToken: tokenString, Role: user.Role})
}

// JWTRefresh issues a fresh token with the user's current role, so a revoked operator
// loses control at the next refresh at the latest.
func JWTRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		render.Render(w, r, ErrUnauthorized(JWTEmpty))
		return
	}

	user, err := lookupUser(claims.Subject)
	if err != nil {
		if err == storm.ErrNotFound {
			render.Render(w, r, ErrUnauthorized(errors.New("Unknown user")))
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}

	tokenString, err := newJWT(user)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, JWTPayload{SignedToken: tokenString, Role: user.Role})
}

//---
// Authentication middleware
//---

// ValidateJWT requires a valid token and stores its claims on the request context.
func ValidateJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := tokenFromRequest(r)
		if tokenStr == "" {
			render.Render(w, r, ErrUnauthorized(JWTEmpty))
			return
		}

		claims, err := parseJWT(tokenStr)
		if err != nil {
			reason := errors.New("Invalid token")
			if errors.Is(err, jwt.ErrTokenExpired) {
				reason = errors.New("Token has expired")
			}

			render.Render(w, r, ErrUnauthorized(reason))
			return
		}

		ctx := context.WithValue(r.Context(), CLAIMS_CONTEXT, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator guards the routes that move the turret or touch the relays. It must
// run after ValidateJWT.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok || !claims.CanOperate() {
			subject := ""
			if ok {
				subject = claims.Subject
			}
			ENV.Log.Warn().Str("user", subject).Str("path", r.URL.Path).Msg("operator route refused")
			render.Render(w, r, ErrPermissionDenied(ErrOperatorOnly))
			return
		}

		next.ServeHTTP(w, r)
	})
}
