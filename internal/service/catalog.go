package service

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
)

// ProductStore is the product half of the catalog store.
type ProductStore interface {
	Create(ctx context.Context, p *model.Product) error
	GetBySlug(ctx context.Context, slug string) (*model.Product, error)
	List(ctx context.Context, opts model.ListOptions) ([]*model.Product, error)
	Update(ctx context.Context, slug string, patch model.ProductPatch) (*model.Product, error)
	DeleteBySlug(ctx context.Context, slug string) error
	Slugs(ctx context.Context) ([]string, error)
}

// ReviewStore is the review half of the catalog store.
type ReviewStore interface {
	Create(ctx context.Context, rv *model.Review) error
	ListApproved(ctx context.Context) ([]*model.Review, error)
	ListAll(ctx context.Context) ([]*model.Review, error)
	Approve(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// SettingsStore holds the singleton settings row.
type SettingsStore interface {
	Get(ctx context.Context) (model.Settings, error)
	Save(ctx context.Context, s model.Settings) error
}

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

const (
	maxSlugLen     = 191
	maxNameLen     = 255
	maxReviewName  = 100
	maxReviewTitle = 200
	maxReviewText  = 5000
)

// maxPrice fits the DECIMAL(12,2) price column of the server engines.
var maxPrice = decimal.New(1, 10)

// Storefront is the public product list with the settings folded in, as
// the storefront pages consume it.
type Storefront struct {
	model.Settings
	Products []*model.Product `json:"products"`
}

// ReviewInput is a public review submission.
type ReviewInput struct {
	Name  string
	Title string
	Text  string
}

// CatalogService applies the catalog rules on top of the store.  Store
// errors pass through unchanged; validation happens here.
type CatalogService struct {
	products ProductStore
	reviews  ReviewStore
	settings SettingsStore
	events   queue.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewCatalogService(p ProductStore, r ReviewStore, s SettingsStore, events queue.Publisher, logger *zap.Logger) *CatalogService {
	if events == nil {
		events = queue.Nop{}
	}
	return &CatalogService{products: p, reviews: r, settings: s, events: events, logger: logger, now: time.Now}
}

// ParseSort maps the sort query value onto a known ordering.
func ParseSort(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), model.SortNew) {
		return model.SortNew
	}
	return model.SortDefault
}

func (s *CatalogService) ListProducts(ctx context.Context, opts model.ListOptions) ([]*model.Product, error) {
	opts.Sort = ParseSort(opts.Sort)
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	return s.products.List(ctx, opts)
}

// Storefront returns settings plus the product list.
func (s *CatalogService) Storefront(ctx context.Context, opts model.ListOptions) (Storefront, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return Storefront{}, err
	}
	products, err := s.ListProducts(ctx, opts)
	if err != nil {
		return Storefront{}, err
	}
	return Storefront{Settings: settings, Products: products}, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, slug string) (*model.Product, error) {
	return s.products.GetBySlug(ctx, slug)
}

// ProductSlugs lists every slug for the sitemap.
func (s *CatalogService) ProductSlugs(ctx context.Context) ([]string, error) {
	return s.products.Slugs(ctx)
}

// CreateProduct requires name and slug; every other field defaults to its
// zero value.  The creation timestamp is taken now and never changes.
func (s *CatalogService) CreateProduct(ctx context.Context, in model.ProductPatch) (*model.Product, error) {
	in = normalizePatch(in)
	if in.Name == nil || *in.Name == "" || in.Slug == nil || *in.Slug == "" {
		return nil, invalid("Name and slug required")
	}
	if err := validatePatch(in); err != nil {
		return nil, err
	}
	p := &model.Product{Price: decimal.Zero, CreatedAt: s.now().UnixMilli()}
	in.Apply(p)
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	s.emitProduct(ctx, queue.ProductCreated, p.Slug)
	return p, nil
}

// UpdateProduct changes only the fields present in patch.  A new slug must
// be free.
func (s *CatalogService) UpdateProduct(ctx context.Context, slug string, patch model.ProductPatch) (*model.Product, error) {
	patch = normalizePatch(patch)
	if patch.Name != nil && *patch.Name == "" {
		return nil, invalid("Name cannot be empty")
	}
	if patch.Slug != nil && *patch.Slug == "" {
		return nil, invalid("Slug cannot be empty")
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	p, err := s.products.Update(ctx, slug, patch)
	if err != nil {
		return nil, err
	}
	s.emitProduct(ctx, queue.ProductUpdated, p.Slug)
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, slug string) error {
	if err := s.products.DeleteBySlug(ctx, slug); err != nil {
		return err
	}
	s.emitProduct(ctx, queue.ProductDeleted, slug)
	return nil
}

// PublicReviews lists approved reviews only.
func (s *CatalogService) PublicReviews(ctx context.Context) ([]*model.Review, error) {
	return s.reviews.ListApproved(ctx)
}

// AdminReviews lists every review regardless of approval.
func (s *CatalogService) AdminReviews(ctx context.Context) ([]*model.Review, error) {
	return s.reviews.ListAll(ctx)
}

// SubmitReview stores a public review.  It is always unapproved.
func (s *CatalogService) SubmitReview(ctx context.Context, in ReviewInput) (*model.Review, error) {
	rv := &model.Review{
		Name:      strings.TrimSpace(in.Name),
		Title:     strings.TrimSpace(in.Title),
		Text:      strings.TrimSpace(in.Text),
		CreatedAt: s.now().UnixMilli(),
		Approved:  false,
	}
	if rv.Name == "" || rv.Title == "" || rv.Text == "" {
		return nil, invalid("All fields required")
	}
	if utf8.RuneCountInString(rv.Name) > maxReviewName ||
		utf8.RuneCountInString(rv.Title) > maxReviewTitle ||
		utf8.RuneCountInString(rv.Text) > maxReviewText {
		return nil, invalid("Review is too long")
	}
	if err := s.reviews.Create(ctx, rv); err != nil {
		return nil, err
	}
	s.emitReview(ctx, queue.ReviewSubmitted, rv.ID)
	return rv, nil
}

// ApproveReview makes a review public.  Approving twice succeeds.
func (s *CatalogService) ApproveReview(ctx context.Context, id int64) error {
	if err := s.reviews.Approve(ctx, id); err != nil {
		return err
	}
	s.emitReview(ctx, queue.ReviewApproved, id)
	return nil
}

func (s *CatalogService) DeleteReview(ctx context.Context, id int64) error {
	if err := s.reviews.Delete(ctx, id); err != nil {
		return err
	}
	s.emitReview(ctx, queue.ReviewDeleted, id)
	return nil
}

// Settings returns the stored settings or the defaults.
func (s *CatalogService) Settings(ctx context.Context) (model.Settings, error) {
	return s.settings.Get(ctx)
}

func (s *CatalogService) UpdateSettings(ctx context.Context, in model.Settings) (model.Settings, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.WhatsAppPhone = strings.TrimSpace(in.WhatsAppPhone)
	if in.Currency == "" {
		in.Currency = model.DefaultSettings().Currency
	}
	if len(in.Currency) > 8 || len(in.WhatsAppPhone) > 64 {
		return model.Settings{}, invalid("Settings value too long")
	}
	if err := s.settings.Save(ctx, in); err != nil {
		return model.Settings{}, err
	}
	s.emit(ctx, queue.NewEvent(queue.SettingsUpdated))
	return in, nil
}

func normalizePatch(p model.ProductPatch) model.ProductPatch {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	p.Slug = trim(p.Slug)
	p.Name = trim(p.Name)
	p.Category = trim(p.Category)
	p.Image = trim(p.Image)
	p.ShortDesc = trim(p.ShortDesc)
	return p
}

func validatePatch(p model.ProductPatch) error {
	if p.Slug != nil && (len(*p.Slug) > maxSlugLen || !slugPattern.MatchString(*p.Slug)) {
		return invalid("Invalid slug")
	}
	if p.Name != nil && utf8.RuneCountInString(*p.Name) > maxNameLen {
		return invalid("Name is too long")
	}
	if p.Price != nil && p.Price.IsNegative() {
		return invalid("Price must not be negative")
	}
	if p.Price != nil && (!p.Price.Equal(p.Price.Round(2)) || p.Price.GreaterThanOrEqual(maxPrice)) {
		return invalid("Price must have at most two decimals and ten integer digits")
	}
	if p.Grams != nil && *p.Grams < 0 {
		return invalid("Grams must not be negative")
	}
	return nil
}

func (s *CatalogService) emitProduct(ctx context.Context, typ, slug string) {
	ev := queue.NewEvent(typ)
	ev.Slug = slug
	s.emit(ctx, ev)
}

func (s *CatalogService) emitReview(ctx context.Context, typ string, id int64) {
	ev := queue.NewEvent(typ)
	ev.ReviewID = id
	s.emit(ctx, ev)
}

// emit never fails the request; the mutation is already committed.
func (s *CatalogService) emit(ctx context.Context, ev queue.CatalogEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("catalog event dropped", zap.String("type", ev.Type), zap.Error(err))
	}
}
