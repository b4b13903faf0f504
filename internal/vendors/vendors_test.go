package vendors

import (
	"context"
	"sync"

	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/tokencache"
)

// memTokens is an in-memory tokencache.Store for adapter tests.
type memTokens struct {
	mu     sync.Mutex
	byID   map[string]*tokencache.Token
	getErr error
	puts   int
}

func newMemTokens() *memTokens {
	return &memTokens{byID: make(map[string]*tokencache.Token)}
}

func (m *memTokens) Get(ctx context.Context, vendorID string) (*tokencache.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.byID[vendorID], nil
}

func (m *memTokens) Put(ctx context.Context, vendorID string, token *tokencache.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[vendorID] = token
	m.puts++
	return nil
}

func vendorRecord(vt db.VendorType, baseURL string, creds db.Credentials) *db.Vendor {
	return &db.Vendor{
		ID:          "vendor-test",
		OrgID:       "org-1",
		Name:        "Test Vendor",
		Type:        vt,
		BaseURL:     baseURL,
		Credentials: creds,
		Active:      true,
	}
}
