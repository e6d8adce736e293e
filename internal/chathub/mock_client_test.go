package chathub_test

import (
	"sync"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/chathub"
)

type MockClient struct {
	userID      string
	transport   string
	RecvChannel chan chathub.Delivery

	mu     sync.Mutex
	closed bool
	ran    bool
}

func newMockClient(userID string) *MockClient {
	return newMockClientWithBuffer(userID, 10)
}

func newMockClientWithBuffer(userID string, size int) *MockClient {
	return &MockClient{
		userID:      userID,
		transport:   chathub.TransportWebSocket,
		RecvChannel: make(chan chathub.Delivery, size),
	}
}

func (c *MockClient) GetUserID() string                      { return c.userID }
func (c *MockClient) GetTransport() string                   { return c.transport }
func (c *MockClient) GetSendChannel() chan<- chathub.Delivery { return c.RecvChannel }

func (c *MockClient) Run() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ran = true
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) HasRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ran
}
