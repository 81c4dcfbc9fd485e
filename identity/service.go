package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals a wrong handle or secret.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrWeakSecret signals a secret below the minimum length.
	ErrWeakSecret = errors.New("identity: secret must be at least 16 characters")
)

// Service handles agent registration and token-based authentication.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and the agent returned after a successful login.
type LoginResult struct {
	Token string
	Agent Agent
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{repo: repo, jwtSecret: []byte(jwtSecret)}
}

// Register creates a new agent account. Secrets are machine-generated API
// credentials, so the length floor is higher than a human password policy.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Agent, error) {
	if len(req.Secret) < 16 {
		return nil, ErrWeakSecret
	}
	if req.Handle == "" || req.WalletAddress == "" {
		return nil, fmt.Errorf("identity: handle and wallet_address are required")
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash secret: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleDual
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("identity: invalid role %q", role)
	}

	agent, err := s.repo.CreateAgent(ctx, CreateAgentParams{
		Handle:        req.Handle,
		DisplayName:   req.DisplayName,
		WalletAddress: req.WalletAddress,
		SecretHash:    string(secretHash),
		Role:          role,
	})
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// Login authenticates an agent and returns a JWT carrying its wallet address.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	agent, err := s.repo.GetByHandle(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(agent.SecretHash), []byte(req.Secret)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(agent)
	if err != nil {
		return LoginResult{}, fmt.Errorf("identity: generate token: %w", err)
	}

	return LoginResult{Token: token, Agent: agent}, nil
}

// VerifyToken validates a JWT and returns the agent id and wallet address.
func (s *Service) VerifyToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("identity: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		agentID, ok := claims["agent_id"].(string)
		if !ok {
			return "", "", fmt.Errorf("identity: invalid agent_id in token")
		}
		wallet, ok := claims["wallet"].(string)
		if !ok {
			return "", "", fmt.Errorf("identity: invalid wallet in token")
		}
		return agentID, wallet, nil
	}

	return "", "", fmt.Errorf("identity: invalid token")
}

func (s *Service) generateToken(agent Agent) (string, error) {
	claims := jwt.MapClaims{
		"agent_id": agent.ID,
		"wallet":   agent.WalletAddress,
		"role":     agent.Role,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func isValidRole(role Role) bool {
	switch role {
	case RoleBuyer, RoleSeller, RoleDual:
		return true
	default:
		return false
	}
}
