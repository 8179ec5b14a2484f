package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/apperror"
	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/repository"
	"storefront/internal/storage"
)

// Mock repositories hand out copies so a mutation only sticks through Update,
// the same as with the database.

type noopTx struct{}

func (noopTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type txKey struct{}

// markingTx flags the context it hands to fn so mocks can tell whether a
// call ran inside a transaction.
type markingTx struct{}

func (markingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, txKey{}, true))
}

func inTx(ctx context.Context) bool {
	marked, _ := ctx.Value(txKey{}).(bool)
	return marked
}

type mockUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[uuid.UUID]domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return &apperror.Error{Kind: apperror.KindConflict, Message: "Duplicate field value. Please use another value!",
				Fields: []apperror.FieldError{{Field: "email", Message: "email is already used"}}}
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Photo == "" {
		user.Photo = domain.DefaultUserPhoto
	}
	user.CreatedAt = time.Now()
	m.users[user.ID] = *user
	return nil
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	stored := *user
	stored.SavedAddresses = append([]domain.SavedAddress(nil), user.SavedAddresses...)
	m.users[user.ID] = stored
	return nil
}

func (m *mockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *mockUserRepository) FindByResetToken(ctx context.Context, hashedToken string, now time.Time) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PasswordResetToken == hashedToken && u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) List(ctx context.Context, opts repository.ListOptions) ([]*domain.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, copyUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return page(all, opts), len(all), nil
}

func copyUser(u domain.User) *domain.User {
	u.SavedAddresses = append([]domain.SavedAddress(nil), u.SavedAddresses...)
	return &u
}

type mockRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *token
	m.tokens[token.Token] = &copied
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	copied := *refreshToken
	return &copied, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

type mockProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]domain.Product
	lastList repository.ProductFilter
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]domain.Product)}
}

func (m *mockProductRepository) put(p domain.Product) *domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.products[p.ID] = p
	return copyProduct(p)
}

func (m *mockProductRepository) get(id uuid.UUID) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id]
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Name == product.Name {
			return apperror.Conflict("Duplicate field value. Please use another value!")
		}
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	m.products[product.ID] = *copyProduct(*product)
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	m.products[product.ID] = *copyProduct(*product)
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return copyProduct(p), nil
}

func (m *mockProductRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return m.FindByID(ctx, id)
}

func (m *mockProductRepository) LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]*domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = copyProduct(p)
		}
	}
	return out, nil
}

func (m *mockProductRepository) ApplySale(ctx context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	if p.Count < quantity {
		return apperror.Conflict("Not enough products in stock")
	}
	p.Count -= quantity
	p.Sales += quantity
	m.products[id] = p
	return nil
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter, opts repository.ListOptions) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = filter
	all := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		all = append(all, copyProduct(p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return page(all, opts), len(all), nil
}

func copyProduct(p domain.Product) *domain.Product {
	p.Attrs = append([]domain.ProductAttr(nil), p.Attrs...)
	p.Images = append([]string(nil), p.Images...)
	p.Reviews = append([]uuid.UUID(nil), p.Reviews...)
	return &p
}

type mockCategoryRepository struct {
	mu         sync.Mutex
	categories map[uuid.UUID]domain.Category
	updates    int
}

func newMockCategoryRepository() *mockCategoryRepository {
	return &mockCategoryRepository{categories: make(map[uuid.UUID]domain.Category)}
}

func (m *mockCategoryRepository) put(c domain.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.categories[c.ID] = c
}

func (m *mockCategoryRepository) byName(name string) (domain.Category, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == name {
			return c, true
		}
	}
	return domain.Category{}, false
}

func (m *mockCategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	if _, exists := m.byName(category.Name); exists {
		return apperror.Conflict("Duplicate field value. Please use another value!")
	}
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	m.put(*copyCategory(*category))
	return nil
}

func (m *mockCategoryRepository) Update(ctx context.Context, category *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[category.ID]; !ok {
		return repository.ErrCategoryNotFound
	}
	m.updates++
	m.categories[category.ID] = *copyCategory(*category)
	return nil
}

func (m *mockCategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *mockCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return copyCategory(c), nil
}

func (m *mockCategoryRepository) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	c, ok := m.byName(name)
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return copyCategory(c), nil
}

func (m *mockCategoryRepository) LockByName(ctx context.Context, name string) (*domain.Category, error) {
	return m.FindByName(ctx, name)
}

func (m *mockCategoryRepository) List(ctx context.Context, opts repository.ListOptions) ([]*domain.Category, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		all = append(all, copyCategory(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return page(all, opts), len(all), nil
}

func copyCategory(c domain.Category) *domain.Category {
	attrs := make([]domain.CategoryAttr, len(c.Attrs))
	for i, a := range c.Attrs {
		attrs[i] = domain.CategoryAttr{Key: a.Key, Values: append([]string(nil), a.Values...)}
	}
	c.Attrs = attrs
	return &c
}

type mockReviewRepository struct {
	mu      sync.Mutex
	reviews map[uuid.UUID]domain.Review
	users   *mockUserRepository
}

func newMockReviewRepository(users *mockUserRepository) *mockReviewRepository {
	return &mockReviewRepository{reviews: make(map[uuid.UUID]domain.Review), users: users}
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.UserID == review.UserID && r.ProductID == review.ProductID {
			return apperror.Conflict("You have already reviewed this product")
		}
	}
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	review.CreatedAt = time.Now()
	m.reviews[review.ID] = *copyReview(*review)
	return nil
}

func (m *mockReviewRepository) Update(ctx context.Context, review *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[review.ID]; !ok {
		return repository.ErrReviewNotFound
	}
	m.reviews[review.ID] = *copyReview(*review)
	return nil
}

func (m *mockReviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[id]; !ok {
		return repository.ErrReviewNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *mockReviewRepository) DeleteByProduct(ctx context.Context, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.reviews {
		if r.ProductID == productID {
			delete(m.reviews, id)
		}
	}
	return nil
}

func (m *mockReviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, repository.ErrReviewNotFound
	}
	return copyReview(r), nil
}

func (m *mockReviewRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	return m.FindByID(ctx, id)
}

func (m *mockReviewRepository) ExistsForUser(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.UserID == userID && r.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockReviewRepository) List(ctx context.Context, filter repository.ReviewFilter, opts repository.ListOptions) ([]*domain.Review, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Review
	for _, r := range m.reviews {
		if filter.ProductID != uuid.Nil && r.ProductID != filter.ProductID {
			continue
		}
		if filter.UserID != uuid.Nil && r.UserID != filter.UserID {
			continue
		}
		all = append(all, copyReview(r))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, opts), len(all), nil
}

func (m *mockReviewRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reviews)
}

func copyReview(r domain.Review) *domain.Review {
	r.WhoLiked = append([]uuid.UUID(nil), r.WhoLiked...)
	return &r
}

type mockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order
	// locks counts LockByID calls, split by whether they ran in a transaction
	locks, locksOutsideTx int
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]domain.Order)}
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = time.Now()
	m.orders[order.ID] = *order
	return nil
}

func (m *mockOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	m.orders[order.ID] = *order
	return nil
}

func (m *mockOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return repository.ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockOrderRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	m.locks++
	if !inTx(ctx) {
		m.locksOutsideTx++
	}
	m.mu.Unlock()
	return m.FindByID(ctx, id)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter, opts repository.ListOptions) ([]*domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Order
	for _, o := range m.orders {
		if filter.UserID != uuid.Nil && o.UserID != filter.UserID {
			continue
		}
		copied := o
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, opts), len(all), nil
}

func page[T any](all []T, opts repository.ListOptions) []T {
	if opts.Limit <= 0 {
		return all
	}
	if opts.Offset >= len(all) {
		return []T{}
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end]
}

type memoryImageStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryImageStore() *memoryImageStore {
	return &memoryImageStore{objects: make(map[string][]byte)}
}

func (s *memoryImageStore) Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[filename] = b
	return filename, nil
}

func (s *memoryImageStore) Open(ctx context.Context, ref string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{ReadCloser: io.NopCloser(bytes.NewReader(b)), Size: int64(len(b))}, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// lastToken extracts the reset token from the most recent mail body
func (m *recordingMailer) lastToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return "", errors.New("no mail sent")
	}
	body := m.sent[len(m.sent)-1].Body
	const marker = "/api/users/resetPassword/"
	i := strings.Index(body, marker)
	if i < 0 {
		return "", errors.New("no reset link in mail")
	}
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest, nil
}
