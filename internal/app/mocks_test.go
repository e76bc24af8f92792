package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu         sync.Mutex
	infoMsgs   []string
	infoFields []map[string]interface{}
	warnMsgs   []string
	errorMsgs  []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
	if len(fields) > 0 {
		m.infoFields = append(m.infoFields, fields[0])
	}
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errorMsgs...)
}

type mockTrading struct {
	account    *domain.Account
	accountErr error
	submitErr  error
	submitted  []domain.OrderRequest
	listed     []*domain.Order
	listErr    error
	lastQuery  domain.OrderQuery
}

func (m *mockTrading) GetAccount(ctx context.Context) (*domain.Account, error) {
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	return m.account, nil
}

func (m *mockTrading) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, req)
	return &domain.Order{
		ID:            "order-" + req.ClientOrderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		Qty:           req.Qty,
		Status:        domain.OrderStatusAccepted,
	}, nil
}

func (m *mockTrading) ListOrders(ctx context.Context, q domain.OrderQuery) ([]*domain.Order, error) {
	m.lastQuery = q
	return m.listed, m.listErr
}

// mockMarket serves the same bars for every bar request, or the next entry of
// series while it lasts.
type mockMarket struct {
	bars     []domain.Bar
	series   [][]domain.Bar
	requests []ports.HistoricalRequest
}

func (m *mockMarket) GetHistorical(ctx context.Context, req ports.HistoricalRequest) (*ports.HistoricalPage, error) {
	m.requests = append(m.requests, req)
	bars := m.bars
	if len(m.series) > 0 {
		bars, m.series = m.series[0], m.series[1:]
	}
	records := make([]json.RawMessage, 0, len(bars))
	for _, b := range bars {
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		records = append(records, raw)
	}
	return &ports.HistoricalPage{OK: true, StatusCode: 200, Records: records}, nil
}

type mockOrders struct {
	mu      sync.Mutex
	saved   map[string]*domain.Order
	saveErr error
}

func newMockOrders() *mockOrders {
	return &mockOrders{saved: make(map[string]*domain.Order)}
}

func (m *mockOrders) SaveOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[order.ID] = order
	return nil
}

func (m *mockOrders) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Order, error) {
	return nil, nil
}

func (m *mockOrders) CountSince(ctx context.Context, symbol string, since time.Time) (int, error) {
	return 0, nil
}

func (m *mockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type mockStrategy struct {
	required int
	intents  [][]domain.OrderIntent // returned on successive calls
	err      error
	states   []domain.MarketState
}

func (m *mockStrategy) Name() string      { return "mock" }
func (m *mockStrategy) RequiredBars() int { return m.required }

func (m *mockStrategy) CheckSignals(ctx context.Context, state domain.MarketState) ([]domain.OrderIntent, error) {
	m.states = append(m.states, state)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.intents) == 0 {
		return nil, nil
	}
	next := m.intents[0]
	m.intents = m.intents[1:]
	return next, nil
}

type mockNews struct {
	mu    sync.Mutex
	saved map[string][]domain.NewsItem
}

func (m *mockNews) SaveNews(ctx context.Context, symbol string, items []domain.NewsItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string][]domain.NewsItem)
	}
	m.saved[symbol] = append(m.saved[symbol], items...)
	return nil
}

// mockStream replays messages, then keeps the stream open until ctx ends
// (or closes it at once when closeEarly is set).
type mockStream struct {
	messages   []domain.StreamMessage
	updates    []domain.TradeUpdate
	startErr   error
	closeEarly bool
}

func (m *mockStream) serve(ctx context.Context) chan struct{} {
	done := make(chan struct{})
	if m.closeEarly {
		close(done)
		return done
	}
	go func() {
		<-ctx.Done()
		close(done)
	}()
	return done
}

func (m *mockStream) StreamMarketData(ctx context.Context, channels []domain.Channel, symbols []string,
	handler func(msg domain.StreamMessage), errHandler func(err error)) (chan struct{}, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	for _, msg := range m.messages {
		handler(msg)
	}
	return m.serve(ctx), nil
}

func (m *mockStream) StreamTradeUpdates(ctx context.Context,
	handler func(update domain.TradeUpdate), errHandler func(err error)) (chan struct{}, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	for _, u := range m.updates {
		handler(u)
	}
	return m.serve(ctx), nil
}
