//go:generate go run go.uber.org/mock/mockgen -source=token_service.go -destination=../mocks/mock_token_service.go -package=mocks
package services

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"talk-lab/auth"
	"talk-lab/domain/event"
	"talk-lab/errors"
)

const (
	// tokenAlphabet is lowercase letters and digits minus the visually
	// ambiguous l, 0 and 1.
	tokenAlphabet = "abcdefghijkmnopqrstuvwxyz23456789"

	defaultTokenEntropy = 8
	maxTokenEntropy     = 30
	maxTokenAttempts    = 1000

	tokenEntropyKey = "token_entropy"
)

var reservedTokens = []string{"settings", "backend"}

type ITokenService interface {
	// NewToken returns a globally unique, never blank, never reserved room
	// token at the currently persisted entropy.
	NewToken() (string, error)
}

// ITokenStore is the slice of the room store the generator needs.
type ITokenStore interface {
	TokenExists(token string) (bool, error)
}

// IEntropyStore persists the system-wide token entropy ratchet.
type IEntropyStore interface {
	GetInt(key string, fallback int) (int, error)
	SetInt(key string, value int) error
}

type TokenService struct {
	rooms  ITokenStore
	config IEntropyStore
	bus    *event.Bus
	log    *slog.Logger
}

func NewTokenService(rooms ITokenStore, config IEntropyStore, bus *event.Bus, log *slog.Logger) ITokenService {
	return &TokenService{rooms: rooms, config: config, bus: bus, log: log}
}

func (s *TokenService) NewToken() (string, error) {
	entropy, err := s.config.GetInt(tokenEntropyKey, defaultTokenEntropy)
	if err != nil {
		return "", err
	}
	if entropy < defaultTokenEntropy {
		entropy = defaultTokenEntropy
	}
	if entropy > maxTokenEntropy {
		entropy = maxTokenEntropy
	}

	for i := 0; i < maxTokenAttempts; i++ {
		token, err := s.draw(entropy)
		if err != nil {
			return "", err
		}
		free, err := s.isFree(token)
		if err != nil {
			return "", err
		}
		if free {
			return token, nil
		}
	}

	// Sustained collisions: the namespace at this length is too crowded.
	// Ratchet the persisted system-wide entropy up and draw exactly one
	// token at the new length; there is no further retry at that level.
	entropy++
	if err := s.config.SetInt(tokenEntropyKey, entropy); err != nil {
		return "", err
	}
	s.log.Warn("token entropy increased", "entropy", entropy)

	token, err := s.draw(entropy)
	if err != nil {
		return "", err
	}
	free, err := s.isFree(token)
	if err != nil {
		return "", err
	}
	if !free {
		return "", fmt.Errorf("%w: entropy %d", errors.ErrTokenExhausted, entropy)
	}
	return token, nil
}

// draw asks listeners for a vanity token first and falls back to a random
// one when none is supplied.
func (s *TokenService) draw(entropy int) (string, error) {
	out := s.bus.DispatchPre(event.TokenGenerate{Entropy: entropy})
	if token := out.Token(); token != "" {
		return token, nil
	}
	return auth.RandomString(tokenAlphabet, entropy)
}

func (s *TokenService) isFree(token string) (bool, error) {
	if lo.Contains(reservedTokens, token) {
		return false, nil
	}
	exists, err := s.rooms.TokenExists(token)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
