// Package auth 为部署 API 提供静态令牌认证与按方法授权。
package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"

	"GuildForge-Chain/pkg/logger"
)

// Service 负责 HTTP 端点的身份验证和授权。
type Service struct {
	mode     Mode
	subjects map[[sha256.Size]byte]*Subject
	audit    *slog.Logger
}

// NewService 构造身份认证服务实例。令牌以摘要形式驻留内存，
// 认证按摘要查表，避免在日志或错误信息中出现明文令牌。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(string(cfg.Mode)))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{
		mode:  mode,
		audit: logger.Audit(),
	}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeToken:
		if len(cfg.Tokens) == 0 {
			return nil, fmt.Errorf("token mode requires at least one token")
		}
		svc.subjects = make(map[[sha256.Size]byte]*Subject, len(cfg.Tokens))
		for _, seed := range cfg.Tokens {
			token := strings.TrimSpace(seed.Token)
			if token == "" {
				return nil, fmt.Errorf("token for %q must not be empty", seed.Name)
			}
			subject := &Subject{
				Name:        seed.Name,
				Roles:       append([]string(nil), seed.Roles...),
				Permissions: append([]string(nil), seed.Permissions...),
				Disabled:    seed.Disabled,
			}
			subject.normalise()
			svc.subjects[sha256.Sum256([]byte(token))] = subject
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// AuthenticateRequest 解析 Authorization 头并返回对应主体。
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	if s == nil || s.mode == ModeDisabled {
		return nil, ErrDisabled
	}
	token := strings.TrimSpace(authorization)
	if token == "" {
		return nil, ErrMissingToken
	}
	if parts := strings.SplitN(token, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		token = strings.TrimSpace(parts[1])
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	subject, ok := s.subjects[sha256.Sum256([]byte(token))]
	if !ok {
		return nil, ErrInvalidToken
	}
	if subject.Disabled {
		return nil, ErrSubjectRevoked
	}
	return subject.Clone(), nil
}
