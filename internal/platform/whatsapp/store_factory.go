package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"
)

// StoreFactory opens the sqlite device store that keeps the bot's session keys.
type StoreFactory struct {
	baseDir string
	log     waLog.Logger
	mu      sync.Mutex
}

func NewStoreFactory(baseDir string, log waLog.Logger) *StoreFactory {
	if log == nil {
		log = waLog.Noop
	}
	return &StoreFactory{baseDir: baseDir, log: log}
}

func (f *StoreFactory) Path(instanceName string) string {
	name := strings.TrimSpace(instanceName)
	if name == "" {
		name = "groupkeeper"
	}
	return filepath.Join(f.baseDir, name+".db")
}

func (f *StoreFactory) NewDeviceStore(ctx context.Context, instanceName string) (*sqlstore.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return nil, err
	}
	// busy_timeout and WAL let the add and remove loops share the store.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_txlock=immediate", f.Path(instanceName))
	container, err := sqlstore.New(ctx, "sqlite", dsn, f.log.Sub("DB"))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	return container, nil
}
