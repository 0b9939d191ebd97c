// Package sender рассылает владельцам компаний письма о смене доступа.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/billing-gate/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gate/internal/lib/smtp"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Repository находит адресата уведомления.
type Repository interface {
	GetCompanyOwner(ctx context.Context, companyID string) (*models.User, error)
}

// Service превращает AccessChange в письмо владельцу компании.
type Service struct {
	repo       Repository
	transport  smtp.TransportInterface
	log        *slog.Logger
	billingURL string
}

// New создает Service. billingURL попадает в письмо как ссылка на оплату.
func New(repo Repository, log *slog.Logger, transport smtp.TransportInterface, billingURL string) *Service {
	return &Service{
		repo:       repo,
		transport:  transport,
		log:        log,
		billingURL: billingURL,
	}
}

// HandleAccessChange обрабатывает одно сообщение из очереди billing.access.
// Нечитаемые сообщения и удалённые компании отбрасываются через rabbitmq.ErrDrop.
func (s *Service) HandleAccessChange(ctx context.Context, body []byte) error {
	const op = "sender.HandleAccessChange"

	var change models.AccessChange
	if err := json.Unmarshal(body, &change); err != nil {
		return fmt.Errorf("%s: %w: %v", op, rabbitmq.ErrDrop, err)
	}
	if change.CompanyID == "" {
		return fmt.Errorf("%s: %w: empty company id", op, rabbitmq.ErrDrop)
	}
	log := s.log.With(slog.String("op", op), sl.Company(change.CompanyID))

	owner, err := s.repo.GetCompanyOwner(ctx, change.CompanyID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%s: %w: owner not found", op, rabbitmq.ErrDrop)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	subject, text := s.compose(owner, change)
	if err := s.sendEmail([]string{owner.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("access change email sent", slog.Bool("is_active", change.IsActive))
	return nil
}

func (s *Service) compose(owner *models.User, change models.AccessChange) (subject, text string) {
	name := owner.Username
	if name == "" {
		name = owner.Email
	}
	switch models.TrialNoticeKind(change.Source) {
	case models.TrialEnding:
		return "Пробный период скоро закончится",
			fmt.Sprintf("Здравствуйте, %s!\n\nПробный период закончится %s.\nЧтобы не потерять доступ, оформите подписку: %s\n",
				name, trialEnd(change), s.billingURL)
	case models.TrialExpired:
		return "Пробный период закончился",
			fmt.Sprintf("Здравствуйте, %s!\n\nПробный период закончился, доступ к сервису закрыт.\nЧтобы продолжить работу, оформите подписку: %s\n",
				name, s.billingURL)
	}
	if change.IsActive {
		return "Подписка активна",
			fmt.Sprintf("Здравствуйте, %s!\n\nОплата прошла, доступ к сервису открыт (статус подписки: %s).\n",
				name, change.SubscriptionStatus)
	}
	return "Доступ к сервису приостановлен",
		fmt.Sprintf("Здравствуйте, %s!\n\nДоступ к сервису закрыт (статус подписки: %s).\nЧтобы восстановить его, оплатите подписку: %s\n",
			name, change.SubscriptionStatus, s.billingURL)
}

func trialEnd(change models.AccessChange) string {
	if change.TrialEndsAt == nil {
		return "в ближайшие дни"
	}
	return change.TrialEndsAt.UTC().Format("02.01.2006 15:04 UTC")
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	const op = "sender.sendEmail"

	from := s.transport.GetSMTPUser()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + mime.QEncoding.Encode("UTF-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.log.Debug("smtp client close", sl.Err(err))
		}
	}()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("%s: mail from: %w", op, err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("%s: rcpt %s: %w", op, addr, err)
		}
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("%s: data: %w", op, err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("%s: write: %w", op, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("%s: close data: %w", op, err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("%s: quit: %w", op, err)
	}
	return nil
}
