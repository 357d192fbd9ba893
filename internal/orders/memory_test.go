package orders

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// memoryRepo keeps orders and stock in maps. Transactions are serialised by
// txMu and roll back by restoring a snapshot, which gives the same outcome as
// row locks held until commit.
type memoryRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[int64]inventory.Product
	clients  map[int64]bool
	orders   map[int64]Order
	nextID   int64
	lineID   int64
	clock    time.Time

	// failOn makes the named TxRepository step return the error. Each entry is
	// consumed after firing times times (0 = forever).
	failOn map[string]*injected
	// block stops LockProducts until the transaction context ends.
	block bool
	txs   int
}

type injected struct {
	err   error
	times int
}

func newMemoryRepo(products ...inventory.Product) *memoryRepo {
	r := &memoryRepo{
		products: make(map[int64]inventory.Product),
		clients:  map[int64]bool{1: true},
		orders:   make(map[int64]Order),
		failOn:   make(map[string]*injected),
		clock:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func product(id int64, price string, stock int) inventory.Product {
	return inventory.Product{ID: id, Name: "p", Price: decimal.RequireFromString(price), Stock: stock}
}

func (r *memoryRepo) fail(step string, err error, times int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn[step] = &injected{err: err, times: times}
}

func (r *memoryRepo) stock(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Stock
}

func (r *memoryRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *memoryRepo) txCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs
}

func (r *memoryRepo) injectedErr(step string) error {
	inj, ok := r.failOn[step]
	if !ok {
		return nil
	}
	if inj.times > 0 {
		inj.times--
		if inj.times == 0 {
			delete(r.failOn, step)
		}
	}
	return inj.err
}

type memorySnapshot struct {
	products map[int64]inventory.Product
	orders   map[int64]Order
	nextID   int64
	lineID   int64
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	r.txs++
	snap := memorySnapshot{
		products: maps.Clone(r.products),
		orders:   maps.Clone(r.orders),
		nextID:   r.nextID,
		lineID:   r.lineID,
	}
	r.mu.Unlock()

	err := fn(ctx, &memoryTx{repo: r})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.mu.Lock()
		r.products, r.orders, r.nextID, r.lineID = snap.products, snap.orders, snap.nextID, snap.lineID
		r.mu.Unlock()
	}
	return err
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Order
	for _, o := range r.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.ClientID > 0 && o.ClientID != filter.ClientID {
			continue
		}
		if !filter.Month.IsZero() && (o.CreatedAt.Before(filter.Month) || !o.CreatedAt.Before(filter.Month.AddDate(0, 1, 0))) {
			continue
		}
		matched = append(matched, cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	start := min(shared.Offset(page, perPage), total)
	end := min(start+perPage, total)
	return matched[start:end], total, nil
}

func cloneOrder(o Order) Order {
	o.Items = slices.Clone(o.Items)
	o.Payments = slices.Clone(o.Payments)
	if o.Items == nil {
		o.Items = []Item{}
	}
	if o.Payments == nil {
		o.Payments = []Payment{}
	}
	return o
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) step(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	return t.repo.injectedErr(name)
}

func (t *memoryTx) LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error) {
	if t.repo.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := t.step(ctx, "LockProducts"); err != nil {
		return nil, err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	out := make(map[int64]inventory.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.repo.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memoryTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	if err := t.step(ctx, "DecrementStock"); err != nil {
		return err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	p, ok := t.repo.products[productID]
	if !ok || p.Stock < qty {
		return inventory.ErrInsufficientStock
	}
	p.Stock -= qty
	t.repo.products[productID] = p
	return nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, order Order) (Order, error) {
	if err := t.step(ctx, "InsertOrder"); err != nil {
		return Order{}, err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if !t.repo.clients[order.ClientID] {
		return Order{}, ErrClientNotFound
	}
	t.repo.nextID++
	order.ID = t.repo.nextID
	order.CreatedAt = t.repo.clock
	order.Items, order.Payments = nil, nil
	t.repo.orders[order.ID] = order
	return order, nil
}

func (t *memoryTx) InsertItems(ctx context.Context, orderID int64, items []Item) error {
	if err := t.step(ctx, "InsertItems"); err != nil {
		return err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	o := t.repo.orders[orderID]
	for _, it := range items {
		t.repo.lineID++
		it.ID, it.OrderID = t.repo.lineID, orderID
		o.Items = append(o.Items, it)
	}
	t.repo.orders[orderID] = o
	return nil
}

func (t *memoryTx) InsertPayments(ctx context.Context, orderID int64, payments []Payment) error {
	if err := t.step(ctx, "InsertPayments"); err != nil {
		return err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	o := t.repo.orders[orderID]
	for _, p := range payments {
		t.repo.lineID++
		p.ID, p.OrderID = t.repo.lineID, orderID
		o.Payments = append(o.Payments, p)
	}
	t.repo.orders[orderID] = o
	return nil
}

func (t *memoryTx) LockStatus(ctx context.Context, orderID int64) (Status, error) {
	if err := t.step(ctx, "LockStatus"); err != nil {
		return "", err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	o, ok := t.repo.orders[orderID]
	if !ok {
		return "", ErrOrderNotFound
	}
	return o.Status, nil
}

func (t *memoryTx) SetStatus(ctx context.Context, orderID int64, status Status) error {
	if err := t.step(ctx, "SetStatus"); err != nil {
		return err
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	o := t.repo.orders[orderID]
	o.Status = status
	t.repo.orders[orderID] = o
	return nil
}

type auditStub struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditStub) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type idempotencyStub struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newIdempotencyStub() *idempotencyStub {
	return &idempotencyStub{keys: make(map[string]bool)}
}

func (s *idempotencyStub) CheckAndInsert(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *idempotencyStub) Delete(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *idempotencyStub) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}

type notifierStub struct {
	mu     sync.Mutex
	placed map[int64][]int64
	err    error
}

func (n *notifierStub) OrderPlaced(_ context.Context, orderID int64, productIDs []int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.placed == nil {
		n.placed = make(map[int64][]int64)
	}
	n.placed[orderID] = productIDs
	return n.err
}

type outcomeStub struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomeStub) ObserveOrder(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[outcome]++
}

func (o *outcomeStub) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[outcome]
}
