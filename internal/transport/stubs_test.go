package transport

import (
	"context"
	"io"

	"github.com/google/uuid"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// Stubs embed the service interface so a test only implements the calls it
// expects. Anything else panics with a nil method call.

type stubProducts struct {
	service.ProductService
	listed   *service.ProductQuery
	created  *service.CreateProductInput
	updated  *service.UpdateProductInput
	images   []string
	products []domain.Product
	total    int
	err      error
}

func (s *stubProducts) List(ctx context.Context, q service.ProductQuery) ([]domain.Product, int, error) {
	s.listed = &q
	return s.products, s.total, s.err
}

func (s *stubProducts) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Product{ID: id, Name: "Phone"}, nil
}

func (s *stubProducts) Create(ctx context.Context, in service.CreateProductInput, images []service.Upload) (*domain.Product, error) {
	s.created = &in
	s.images = readUploads(images)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Product{ID: uuid.New(), Name: in.Name}, nil
}

func (s *stubProducts) Update(ctx context.Context, id uuid.UUID, in service.UpdateProductInput, images []service.Upload) (*domain.Product, error) {
	s.updated = &in
	s.images = readUploads(images)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Product{ID: id}, nil
}

func (s *stubProducts) Delete(ctx context.Context, id uuid.UUID) error {
	return s.err
}

func (s *stubProducts) Export(ctx context.Context, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := w.Write([]byte("PK-workbook"))
	return err
}

type stubCategories struct {
	service.CategoryService
	categories []*domain.Category
	lookedUp   string
	updatedID  uuid.UUID
	err        error
}

func (s *stubCategories) List(ctx context.Context, params service.ListParams) ([]*domain.Category, int, error) {
	return s.categories, len(s.categories), s.err
}

func (s *stubCategories) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	s.lookedUp = name
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Category{ID: uuid.New(), Name: name}, nil
}

func (s *stubCategories) Create(ctx context.Context, in service.CreateCategoryInput) (*domain.Category, error) {
	return &domain.Category{ID: uuid.New(), Name: in.Name, Description: in.Description, Attrs: in.Attrs}, s.err
}

func (s *stubCategories) Update(ctx context.Context, id uuid.UUID, in service.UpdateCategoryInput) (*domain.Category, error) {
	s.updatedID = id
	return &domain.Category{ID: id}, s.err
}

func (s *stubCategories) Delete(ctx context.Context, id uuid.UUID) error {
	return s.err
}

type stubReviews struct {
	service.ReviewService
	actor   *domain.User
	target  uuid.UUID
	params  service.ListParams
	reviews []*domain.Review
	liked   bool
	unliked bool
	err     error
}

func (s *stubReviews) ListByProduct(ctx context.Context, productID uuid.UUID, params service.ListParams) ([]*domain.Review, int, error) {
	s.target, s.params = productID, params
	return s.reviews, 42, s.err
}

func (s *stubReviews) ListByUser(ctx context.Context, userID uuid.UUID, params service.ListParams) ([]*domain.Review, int, error) {
	s.target, s.params = userID, params
	return s.reviews, len(s.reviews), s.err
}

func (s *stubReviews) Get(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Review{ID: id}, nil
}

func (s *stubReviews) Create(ctx context.Context, actor *domain.User, productID uuid.UUID, in service.CreateReviewInput) (*domain.Review, error) {
	s.actor, s.target = actor, productID
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Review{ID: uuid.New(), ProductID: productID, Rating: in.Rating, Text: in.Review}, nil
}

func (s *stubReviews) Update(ctx context.Context, actor *domain.User, id uuid.UUID, in service.UpdateReviewInput) (*domain.Review, error) {
	s.actor, s.target = actor, id
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Review{ID: id}, nil
}

func (s *stubReviews) Delete(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	s.actor, s.target = actor, id
	return s.err
}

func (s *stubReviews) Like(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	s.actor, s.target, s.liked = actor, id, true
	return s.err
}

func (s *stubReviews) Unlike(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	s.actor, s.target, s.unliked = actor, id, true
	return s.err
}

type stubOrders struct {
	service.OrderService
	actor     *domain.User
	created   *service.CreateOrderInput
	address   *domain.Address
	listedFor uuid.UUID
	calls     []string
	err       error
}

func (s *stubOrders) record(call string, id uuid.UUID) (*domain.Order, error) {
	s.calls = append(s.calls, call)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Order{ID: id, UserID: testCustomer.ID, Status: domain.OrderStatus(call)}, nil
}

func (s *stubOrders) Create(ctx context.Context, actor *domain.User, in service.CreateOrderInput) (*domain.Order, error) {
	s.actor, s.created = actor, &in
	return s.record("create", uuid.New())
}

func (s *stubOrders) Get(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Order, error) {
	s.actor = actor
	return s.record("get", id)
}

func (s *stubOrders) ListByUser(ctx context.Context, actor *domain.User, userID uuid.UUID, params service.ListParams) ([]*domain.Order, int, error) {
	s.actor, s.listedFor = actor, userID
	return []*domain.Order{{ID: uuid.New(), UserID: userID}}, 1, s.err
}

func (s *stubOrders) List(ctx context.Context, params service.ListParams) ([]*domain.Order, int, error) {
	s.calls = append(s.calls, "list")
	return nil, 0, s.err
}

func (s *stubOrders) UpdateDeliveryAddress(ctx context.Context, actor *domain.User, id uuid.UUID, addr domain.Address) (*domain.Order, error) {
	s.actor, s.address = actor, &addr
	return s.record("address", id)
}

func (s *stubOrders) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.record("paid", id)
}

func (s *stubOrders) MarkTransit(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.record("transit", id)
}

func (s *stubOrders) MarkDelivered(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.record("delivered", id)
}

func (s *stubOrders) Delete(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	s.actor = actor
	s.calls = append(s.calls, "delete")
	return s.err
}

type stubAuth struct {
	service.AuthService
	signups     int
	signup      *service.SignupInput
	resetToken  string
	forgotEmail string
	forgotBase  string
	revoked     string
	err         error
}

func (s *stubAuth) session(user *domain.User) (*service.AuthResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.AuthResult{AccessToken: "access", RefreshToken: "refresh", User: user}, nil
}

func (s *stubAuth) Signup(ctx context.Context, in service.SignupInput) (*service.AuthResult, error) {
	s.signups++
	s.signup = &in
	return s.session(&domain.User{ID: uuid.New(), Name: in.Name, Email: in.Email})
}

func (s *stubAuth) Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error) {
	return s.session(testCustomer)
}

func (s *stubAuth) Logout(ctx context.Context, refreshToken string) error {
	s.revoked = refreshToken
	return s.err
}

func (s *stubAuth) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "fresh-" + refreshToken, nil
}

func (s *stubAuth) ForgotPassword(ctx context.Context, email, baseURL string) error {
	s.forgotEmail, s.forgotBase = email, baseURL
	return s.err
}

func (s *stubAuth) ResetPassword(ctx context.Context, token string, in service.ResetPasswordInput) (*service.AuthResult, error) {
	s.resetToken = token
	return s.session(testCustomer)
}

func (s *stubAuth) UpdateMyPassword(ctx context.Context, actor *domain.User, in service.UpdatePasswordInput) (*service.AuthResult, error) {
	return s.session(actor)
}

type stubUsers struct {
	service.UserService
	actor   *domain.User
	info    *service.UpdateMyInfoInput
	photo   []byte
	address *domain.Address
	deleted uuid.UUID
	err     error
}

func (s *stubUsers) GetMyInfo(ctx context.Context, actor *domain.User) (*service.MyInfo, error) {
	s.actor = actor
	return &service.MyInfo{User: actor, ProductsReviewed: []uuid.UUID{}}, s.err
}

func (s *stubUsers) UpdateMyInfo(ctx context.Context, actor *domain.User, in service.UpdateMyInfoInput, photo *service.Upload) (*domain.User, error) {
	s.actor, s.info = actor, &in
	if photo != nil {
		s.photo, _ = io.ReadAll(photo.Body)
	}
	return actor, s.err
}

func (s *stubUsers) AddAddress(ctx context.Context, actor *domain.User, addr domain.Address) (*domain.User, error) {
	s.actor, s.address = actor, &addr
	return actor, s.err
}

func (s *stubUsers) DeleteAddress(ctx context.Context, actor *domain.User, addressID uuid.UUID) (*domain.User, error) {
	s.actor = actor
	if s.err != nil {
		return nil, s.err
	}
	return actor, nil
}

func (s *stubUsers) DeleteMe(ctx context.Context, actor *domain.User) error {
	s.actor = actor
	s.deleted = actor.ID
	return s.err
}

func (s *stubUsers) GetPublic(ctx context.Context, id uuid.UUID) (*domain.PublicProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.PublicProfile{ID: id, Name: "Jane", Photo: domain.DefaultUserPhoto}, nil
}

func (s *stubUsers) List(ctx context.Context, params service.ListParams) ([]*domain.User, int, error) {
	return []*domain.User{testCustomer}, 1, s.err
}

func (s *stubUsers) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return testCustomer, s.err
}

func (s *stubUsers) Delete(ctx context.Context, id uuid.UUID) error {
	s.deleted = id
	return s.err
}

func readUploads(uploads []service.Upload) []string {
	names := make([]string, 0, len(uploads))
	for _, up := range uploads {
		body, _ := io.ReadAll(up.Body)
		names = append(names, up.Filename+":"+string(body))
	}
	return names
}
