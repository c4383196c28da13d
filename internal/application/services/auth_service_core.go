package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	config "github.com/torrecontrole/sentinela/configs"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token is blacklisted")
)

// Columns of the users list.
const (
	userFieldEmail = "Email"
	userFieldSenha = "Senha"
	userFieldNome  = "NomeExibicao"
	userFieldRole  = "Perfil"
	userFieldArea  = "Area"
)

// AuthService authenticates against the users list and issues session tokens.
type AuthService struct {
	users     ports.DatasetLoader
	usersList string
	tokenRepo ports.TokenRepository
	jwtConfig *config.JWTConfig
	logger    *logrus.Logger
	now       func() time.Time
}

func NewAuthService(users ports.DatasetLoader, usersList string, tokenRepo ports.TokenRepository, jwtConfig *config.JWTConfig, logger *logrus.Logger) *AuthService {
	return &AuthService{
		users:     users,
		usersList: usersList,
		tokenRepo: tokenRepo,
		jwtConfig: jwtConfig,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (*auth.AuthTokens, error) {
	if req == nil {
		return nil, ErrInvalidCredentials
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := utils.CheckPassword(user.String(userFieldSenha), req.Password); err != nil {
		if errors.Is(err, utils.ErrPasswordNotHash) && s.logger != nil {
			s.logger.WithFields(logrus.Fields{"email": email}).Warn("user has no hashed password; run hash-password and update the users list")
		}
		return nil, ErrInvalidCredentials
	}

	return s.GenerateTokens(userClaims(user))
}

// findUser looks the e-mail up in the cached users list. Matching is done in
// memory so user input never reaches an OData filter.
func (s *AuthService) findUser(ctx context.Context, email string) (desvio.Record, error) {
	rows, err := s.users.Load(ctx, desvio.Query{Dataset: s.usersList})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, r := range rows {
		if strings.EqualFold(r.String(userFieldEmail), email) {
			return r, nil
		}
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"email": email}).Info("login for unknown user")
	}
	return nil, ErrInvalidCredentials
}

func userClaims(r desvio.Record) *auth.Claims {
	return &auth.Claims{
		Email: strings.ToLower(r.String(userFieldEmail)),
		Name:  r.String(userFieldNome),
		Role:  auth.ParseRole(r.String(userFieldRole)),
		Areas: splitAreas(r.String(userFieldArea)),
	}
}

func splitAreas(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.jwtConfig.AccessTokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.tokenRepo.BlacklistToken(ctx, s.GetTokenHash(token), expiresAt); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"email": claims.Email}).Info("user logged out")
	}
	return nil
}
