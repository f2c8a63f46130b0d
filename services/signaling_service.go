//go:generate go run go.uber.org/mock/mockgen -source=signaling_service.go -destination=../mocks/mock_signaling_service.go -package=mocks
package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"talk-lab/auth"
	"talk-lab/contract"
	"talk-lab/repositories"
)

const (
	signalingSecretKey        = "signaling_ticket_secret"
	signalingUserSecretPrefix = "signaling_ticket_secret_"
	signalingSecretLength     = 255
	ticketRandomLength        = 16

	// ticketV2Lifetime keeps v2 tickets short-lived; clients refresh on use.
	ticketV2Lifetime = 60 * time.Second
)

type ISignalingTicketService interface {
	// IssueTicket returns a v1 ticket bound to userID. An empty userID
	// issues a guest ticket against the shared guest secret.
	IssueTicket(userID string) (string, error)
	// ValidateTicket reports whether ticket was issued by IssueTicket for
	// userID. It never returns an error for malformed input.
	ValidateTicket(userID, ticket string) (bool, error)
	// IssueTicketV2 returns a signed JWT carrying the user's display name.
	IssueTicketV2(userID string) (string, error)
}

// SignalingTicketService issues and checks the tickets a signaling backend
// uses to trust session requests. Secrets are created lazily per scope and
// persisted; racing first issuers may write the key twice, the last write
// wins and only wastes the losing ticket.
type SignalingTicketService struct {
	config    repositories.IAppConfigRepository
	directory contract.IUserDirectory
	issuer    string
	log       *slog.Logger
	now       func() time.Time
}

func NewSignalingTicketService(
	config repositories.IAppConfigRepository,
	directory contract.IUserDirectory,
	issuer string,
	log *slog.Logger,
) *SignalingTicketService {
	return &SignalingTicketService{
		config:    config,
		directory: directory,
		issuer:    issuer,
		log:       log,
		now:       time.Now,
	}
}

func (s *SignalingTicketService) secretKey(userID string) string {
	if userID == "" {
		return signalingSecretKey
	}
	return signalingUserSecretPrefix + userID
}

func (s *SignalingTicketService) secret(userID string, create bool) (string, error) {
	key := s.secretKey(userID)
	value, err := s.config.Get(key)
	if err != nil {
		return "", err
	}
	if value != "" || !create {
		return value, nil
	}

	if value, err = auth.RandomString(auth.AlphaNumeric, signalingSecretLength); err != nil {
		return "", err
	}
	if err := s.config.Set(key, value); err != nil {
		return "", err
	}
	return value, nil
}

func (s *SignalingTicketService) IssueTicket(userID string) (string, error) {
	secret, err := s.secret(userID, true)
	if err != nil {
		return "", err
	}

	random, err := auth.RandomString(auth.AlphaNumeric, ticketRandomLength)
	if err != nil {
		return "", err
	}

	data := fmt.Sprintf("%s:%d:%s", random, s.now().Unix(), userID)
	return data + ":" + s.sign(data, secret), nil
}

func (s *SignalingTicketService) ValidateTicket(userID, ticket string) (bool, error) {
	secret, err := s.secret(userID, false)
	if err != nil {
		return false, err
	}
	if secret == "" {
		// No ticket was ever issued for this scope.
		return false, nil
	}

	idx := strings.LastIndex(ticket, ":")
	if idx <= 0 || idx == len(ticket)-1 {
		return false, nil
	}
	data, mac := ticket[:idx], ticket[idx+1:]

	if !hmac.Equal([]byte(mac), []byte(s.sign(data, secret))) {
		return false, nil
	}

	// The signed payload must name the same user it is presented for.
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return false, nil
	}
	return parts[2] == userID, nil
}

func (s *SignalingTicketService) IssueTicketV2(userID string) (string, error) {
	secret, err := s.secret(userID, true)
	if err != nil {
		return "", err
	}

	displayName := userID
	if name, ok := s.directory.DisplayName(userID); ok {
		displayName = name
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": s.issuer,
		"iat": now.Unix(),
		"exp": now.Add(ticketV2Lifetime).Unix(),
		"sub": userID,
		"userdata": map[string]string{
			"displayname": displayName,
		},
	})
	return token.SignedString([]byte(secret))
}

func (s *SignalingTicketService) sign(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
