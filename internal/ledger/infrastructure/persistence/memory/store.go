// Package memory 进程内账本存储，事务内写入先暂存，提交时在同一把锁下整体生效
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

// Store 同时实现 AccountStore、TransactionLog、OwnerStore 与 UnitOfWork
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	numbers  map[string]string
	owners   map[string]*domain.Owner
	txs      []*domain.Transaction
	txIndex  map[string]int
	now      func() time.Time
}

// Option 配置项
type Option func(*Store)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore 创建空存储
func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[string]*domain.Account),
		numbers:  make(map[string]string),
		owners:   make(map[string]*domain.Owner),
		txIndex:  make(map[string]int),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type appended struct {
	stored *domain.Transaction
	caller *domain.Transaction
}

// txState 单个事务的暂存区
type txState struct {
	accounts map[string]*domain.Account
	// 暂存账户读取时的版本号，提交时比对
	baseVersion map[string]int64
	created     map[string]bool
	owners      map[string]*domain.Owner
	txs         []appended
}

func newTxState() *txState {
	return &txState{
		accounts:    make(map[string]*domain.Account),
		baseVersion: make(map[string]int64),
		created:     make(map[string]bool),
		owners:      make(map[string]*domain.Owner),
	}
}

func stateFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// Transact 实现 UnitOfWork，嵌套调用复用外层事务
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return mapCtxErr(err)
	}
	st := newTxState()
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	return s.commit(st)
}

func mapCtxErr(err error) error {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return domain.ErrTimeout
	}
	return err
}

// write 无事务时包一层隐式事务
func (s *Store) write(ctx context.Context, fn func(st *txState) error) error {
	if st := stateFrom(ctx); st != nil {
		return fn(st)
	}
	return s.Transact(ctx, func(ctx context.Context) error {
		return fn(stateFrom(ctx))
	})
}

func (s *Store) commit(st *txState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 先全部校验，再全部生效
	for id, acc := range st.accounts {
		if st.created[id] {
			if _, ok := s.accounts[id]; ok {
				return domain.ErrAccountNumberTaken
			}
			if _, ok := s.numbers[acc.Number]; ok {
				return domain.ErrAccountNumberTaken
			}
			continue
		}
		current, ok := s.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if current.Version != st.baseVersion[id] {
			return domain.ErrConcurrentModification
		}
	}
	seen := make(map[string]struct{}, len(st.txs))
	for _, a := range st.txs {
		if _, ok := s.txIndex[a.stored.TransactionID]; ok {
			return domain.ErrDuplicateTransaction
		}
		if _, ok := seen[a.stored.TransactionID]; ok {
			return domain.ErrDuplicateTransaction
		}
		seen[a.stored.TransactionID] = struct{}{}
	}

	for id, acc := range st.accounts {
		s.accounts[id] = acc
		s.numbers[acc.Number] = id
	}
	for id, o := range st.owners {
		s.owners[id] = o
	}
	for _, a := range st.txs {
		a.stored.ID = uint(len(s.txs) + 1)
		a.caller.ID = a.stored.ID
		s.txIndex[a.stored.TransactionID] = len(s.txs)
		s.txs = append(s.txs, a.stored)
	}
	return nil
}

// ---- AccountStore ----

// Create 实现 AccountStore
func (s *Store) Create(ctx context.Context, account *domain.Account) error {
	return s.write(ctx, func(st *txState) error {
		s.mu.RLock()
		_, idTaken := s.accounts[account.ID]
		_, numTaken := s.numbers[account.Number]
		s.mu.RUnlock()
		if idTaken || numTaken {
			return domain.ErrAccountNumberTaken
		}
		for _, staged := range st.accounts {
			if staged.ID == account.ID || staged.Number == account.Number {
				return domain.ErrAccountNumberTaken
			}
		}
		now := s.now()
		account.CreatedAt = now
		account.UpdatedAt = now
		account.Version = 1
		st.accounts[account.ID] = account.Clone()
		st.created[account.ID] = true
		return nil
	})
}

func (s *Store) committed(accountID string) (*domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, false
	}
	return acc.Clone(), true
}

// Get 实现 AccountStore
func (s *Store) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	if st := stateFrom(ctx); st != nil {
		if acc, ok := st.accounts[accountID]; ok {
			return acc.Clone(), nil
		}
	}
	acc, ok := s.committed(accountID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acc, nil
}

// GetByNumber 实现 AccountStore
func (s *Store) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	if st := stateFrom(ctx); st != nil {
		for _, acc := range st.accounts {
			if acc.Number == number {
				return acc.Clone(), nil
			}
		}
	}
	s.mu.RLock()
	id, ok := s.numbers[number]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.Get(ctx, id)
}

// stage 把账户放入暂存区并记录基准版本
func (s *Store) stage(st *txState, accountID string) (*domain.Account, error) {
	if acc, ok := st.accounts[accountID]; ok {
		return acc, nil
	}
	acc, ok := s.committed(accountID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	st.accounts[accountID] = acc
	st.baseVersion[accountID] = acc.Version
	return acc, nil
}

// GetForUpdate 实现 AccountStore，读取即暂存，提交时校验版本
func (s *Store) GetForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	st := stateFrom(ctx)
	if st == nil {
		return s.Get(ctx, accountID)
	}
	acc, err := s.stage(st, accountID)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// AdjustBalance 实现 AccountStore
func (s *Store) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, expectedPrior *decimal.Decimal) (*domain.Account, error) {
	var result *domain.Account
	err := s.write(ctx, func(st *txState) error {
		acc, err := s.stage(st, accountID)
		if err != nil {
			return err
		}
		if err := acc.EnsureActive(); err != nil {
			return err
		}
		if expectedPrior != nil && !acc.Balance.Equal(*expectedPrior) {
			return domain.ErrConcurrentModification
		}
		next := acc.Balance.Add(delta)
		if next.IsNegative() {
			return domain.ErrInsufficientFunds
		}
		acc.Balance = next
		acc.Version++
		acc.UpdatedAt = s.now()
		result = acc.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update 实现 AccountStore
func (s *Store) Update(ctx context.Context, account *domain.Account) error {
	return s.write(ctx, func(st *txState) error {
		acc, err := s.stage(st, account.ID)
		if err != nil {
			return err
		}
		if acc.Version != account.Version {
			return domain.ErrConcurrentModification
		}
		acc.Name = account.Name
		acc.Status = account.Status
		acc.InterestRate = account.Clone().InterestRate
		acc.DailyLimit = account.Clone().DailyLimit
		acc.MonthlyLimit = account.Clone().MonthlyLimit
		acc.Version++
		acc.UpdatedAt = s.now()
		account.Version = acc.Version
		account.UpdatedAt = acc.UpdatedAt
		return nil
	})
}

func (s *Store) listAccounts(ctx context.Context, keep func(*domain.Account) bool) []*domain.Account {
	merged := make(map[string]*domain.Account)
	s.mu.RLock()
	for id, acc := range s.accounts {
		if keep(acc) {
			merged[id] = acc.Clone()
		}
	}
	s.mu.RUnlock()
	if st := stateFrom(ctx); st != nil {
		for id, acc := range st.accounts {
			if keep(acc) {
				merged[id] = acc.Clone()
			} else {
				delete(merged, id)
			}
		}
	}
	out := make([]*domain.Account, 0, len(merged))
	for _, acc := range merged {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListByOwner 实现 AccountStore
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	return s.listAccounts(ctx, func(a *domain.Account) bool { return a.OwnerID == ownerID }), nil
}

// ListActive 实现 AccountStore
func (s *Store) ListActive(ctx context.Context) ([]*domain.Account, error) {
	return s.listAccounts(ctx, (*domain.Account).IsActive), nil
}

// ---- TransactionLog ----

// Append 实现 TransactionLog
func (s *Store) Append(ctx context.Context, tx *domain.Transaction) error {
	return s.write(ctx, func(st *txState) error {
		s.mu.RLock()
		_, exists := s.txIndex[tx.TransactionID]
		s.mu.RUnlock()
		if exists {
			return domain.ErrDuplicateTransaction
		}
		for _, a := range st.txs {
			if a.stored.TransactionID == tx.TransactionID {
				return domain.ErrDuplicateTransaction
			}
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = s.now()
		}
		st.txs = append(st.txs, appended{stored: tx.Clone(), caller: tx})
		return nil
	})
}

// GetByTransactionID 实现 TransactionLog
func (s *Store) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if st := stateFrom(ctx); st != nil {
		for _, a := range st.txs {
			if a.stored.TransactionID == transactionID {
				return a.stored.Clone(), nil
			}
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.txIndex[transactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return s.txs[i].Clone(), nil
}

// List 实现 TransactionLog
func (s *Store) List(ctx context.Context, q domain.TransactionQuery) ([]*domain.Transaction, int64, error) {
	var matched []*domain.Transaction
	s.mu.RLock()
	for _, tx := range s.txs {
		if matches(tx, q) {
			matched = append(matched, tx.Clone())
		}
	}
	s.mu.RUnlock()
	if st := stateFrom(ctx); st != nil {
		for _, a := range st.txs {
			if matches(a.stored, q) {
				matched = append(matched, a.stored.Clone())
			}
		}
	}

	// 按创建时间倒序，同一时刻按写入顺序倒序；暂存记录尚无 ID，排在最后写入的位置
	order := make(map[*domain.Transaction]int, len(matched))
	for i, tx := range matched {
		order[tx] = i
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return order[a] > order[b]
	})

	total := int64(len(matched))
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []*domain.Transaction{}, total, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func matches(tx *domain.Transaction, q domain.TransactionQuery) bool {
	if len(q.AccountIDs) > 0 {
		hit := false
		for _, id := range q.AccountIDs {
			switch q.Side {
			case domain.SideSource:
				hit = tx.FromAccountID == id
			case domain.SideDestination:
				hit = tx.ToAccountID == id
			default:
				hit = tx.Touches(id)
			}
			if hit {
				break
			}
		}
		if !hit {
			return false
		}
	}
	if q.Status != "" && tx.Status != q.Status {
		return false
	}
	if len(q.Types) > 0 && !slices.Contains(q.Types, tx.Type) {
		return false
	}
	if q.Category != "" && tx.Category != q.Category {
		return false
	}
	if q.From != nil && tx.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && !tx.CreatedAt.Before(*q.To) {
		return false
	}
	if q.MinAmount != nil && tx.Amount.LessThan(*q.MinAmount) {
		return false
	}
	if q.MaxAmount != nil && tx.Amount.GreaterThan(*q.MaxAmount) {
		return false
	}
	return true
}

// ---- OwnerStore ----

// Upsert 实现 OwnerStore
func (s *Store) Upsert(ctx context.Context, owner *domain.Owner) error {
	return s.write(ctx, func(st *txState) error {
		now := s.now()
		c := *owner
		if existing, err := s.getOwner(st, owner.ID); err == nil {
			c.CreatedAt = existing.CreatedAt
		} else {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		st.owners[owner.ID] = &c
		owner.CreatedAt, owner.UpdatedAt = c.CreatedAt, c.UpdatedAt
		return nil
	})
}

func (s *Store) getOwner(st *txState, ownerID string) (*domain.Owner, error) {
	if st != nil {
		if o, ok := st.owners[ownerID]; ok {
			c := *o
			return &c, nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[ownerID]
	if !ok {
		return nil, domain.ErrOwnerNotFound
	}
	c := *o
	return &c, nil
}

func (s *Store) getOwnerCtx(ctx context.Context, ownerID string) (*domain.Owner, error) {
	return s.getOwner(stateFrom(ctx), ownerID)
}

// FindByPhone 实现 OwnerStore
func (s *Store) FindByPhone(ctx context.Context, phone string) ([]*domain.Owner, error) {
	merged := make(map[string]*domain.Owner)
	s.mu.RLock()
	for id, o := range s.owners {
		if o.Phone == phone {
			c := *o
			merged[id] = &c
		}
	}
	s.mu.RUnlock()
	if st := stateFrom(ctx); st != nil {
		for id, o := range st.owners {
			if o.Phone == phone {
				c := *o
				merged[id] = &c
			} else {
				delete(merged, id)
			}
		}
	}
	out := make([]*domain.Owner, 0, len(merged))
	for _, o := range merged {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Owners 返回 OwnerStore 视图；Store.Get 已被 AccountStore 占用
func (s *Store) Owners() domain.OwnerStore {
	return ownerView{s}
}

type ownerView struct{ s *Store }

func (v ownerView) Upsert(ctx context.Context, owner *domain.Owner) error {
	return v.s.Upsert(ctx, owner)
}

func (v ownerView) Get(ctx context.Context, ownerID string) (*domain.Owner, error) {
	return v.s.getOwnerCtx(ctx, ownerID)
}

func (v ownerView) FindByPhone(ctx context.Context, phone string) ([]*domain.Owner, error) {
	return v.s.FindByPhone(ctx, phone)
}

var (
	_ domain.AccountStore   = (*Store)(nil)
	_ domain.TransactionLog = (*Store)(nil)
	_ domain.UnitOfWork     = (*Store)(nil)
	_ domain.OwnerStore     = ownerView{}
)
