package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/billing-gate/internal/migrations"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

const pgPort nat.Port = "5432/tcp"

// setupTestDatabase поднимает PostgreSQL в контейнере и накатывает миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, pgPort)
	require.NoError(t, err, "failed to get port")

	connStr := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	var storage *Storage
	for range 10 {
		storage, err = New(ctx, connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")
	t.Cleanup(func() {
		_ = storage.Close()
	})

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, storage.CheckDatabaseReady(ctx))

	return storage
}

// TestDataFactory содержит методы для создания тестовых данных.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создаёт фабрику тестовых данных.
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateTenant создаёт компанию с пробным периодом и её владельца.
func (f *TestDataFactory) CreateTenant(t *testing.T, email string, trialEnds time.Time) (companyID, userUID string) {
	t.Helper()
	start := trialEnds.Add(-14 * 24 * time.Hour)
	companyID, userUID, err := f.storage.CreateCompanyWithOwner(context.Background(),
		models.Company{
			Name:               "Acme",
			TrialStartedAt:     &start,
			TrialEndsAt:        &trialEnds,
			SubscriptionStatus: models.StatusNone,
			IsActive:           true,
		},
		models.User{Email: email, Username: "owner" + fmt.Sprint(time.Now().UnixNano()), PasswordHash: "hash"},
	)
	require.NoError(t, err)
	return companyID, userUID
}

// CreateMember добавляет в компанию пользователя с ролью member.
func (f *TestDataFactory) CreateMember(t *testing.T, companyID, email string) string {
	t.Helper()
	var uid string
	err := f.storage.DB.QueryRow(`
		INSERT INTO users (company_id, email, username, password_hash, role)
		VALUES ($1, $2, $3, 'hash', 'member') RETURNING uid`,
		companyID, email, "member"+fmt.Sprint(time.Now().UnixNano()),
	).Scan(&uid)
	require.NoError(t, err)
	return uid
}

// CreateOrphanUser создаёт пользователя без компании.
func (f *TestDataFactory) CreateOrphanUser(t *testing.T, email string) string {
	t.Helper()
	var uid string
	err := f.storage.DB.QueryRow(`
		INSERT INTO users (email, username, password_hash, role)
		VALUES ($1, 'orphan', 'hash', 'member') RETURNING uid`, email,
	).Scan(&uid)
	require.NoError(t, err)
	return uid
}
