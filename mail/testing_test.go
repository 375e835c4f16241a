package mail

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mailroom/config"
	"mailroom/models"
)

const testDomain = "mail.example.com"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "mailroom.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := config.MigrateDB(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func createAccount(t *testing.T, db *gorm.DB, account *models.Account) *models.Account {
	t.Helper()
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return account
}

// fakeProvider implements Provider for tests. Send outcomes are keyed by
// recipient so concurrent fan-out stays deterministic.
type fakeProvider struct {
	mu       sync.Mutex
	sent     []*ProviderMessage
	failFor  map[string]error
	inbound  map[string]*InboundContent
	fetchErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		failFor: map[string]error{},
		inbound: map[string]*InboundContent{},
	}
}

func (f *fakeProvider) Send(ctx context.Context, msg *ProviderMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return "prov-" + msg.To, nil
}

func (f *fakeProvider) FetchInbound(ctx context.Context, emailID string) (*InboundContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if content, ok := f.inbound[emailID]; ok {
		return content, nil
	}
	return nil, fmt.Errorf("email %s not found", emailID)
}

func (f *fakeProvider) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, msg := range f.sent {
		out = append(out, msg.To)
	}
	return out
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}
