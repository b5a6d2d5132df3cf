// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"printshop/internal/apperror"
	"printshop/internal/cache"
	"printshop/internal/pricing"
	"printshop/internal/profile"
	"printshop/internal/store"
	"printshop/internal/validation"
)

// service implements the Service interface.
type service struct {
	store  *store.Store
	cache  *cache.Helper
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	lookups metric.Int64Counter
}

// NewService creates a new catalog service instance. A nil cache disables
// listing caching.
func NewService(st *store.Store, c *cache.Helper, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.NewHelper(nil, "", logger)
	}

	lookups, err := otel.Meter("printshop/catalog").Int64Counter("catalog.listing.cache",
		metric.WithDescription("Listing cache lookups by result"))
	if err != nil {
		logger.Warn("failed to create counter", "name", "catalog.listing.cache", "error", err)
		lookups = noop.Int64Counter{}
	}

	return &service{
		store:   st,
		cache:   c,
		logger:  logger,
		tracer:  otel.Tracer("printshop/catalog"),
		now:     time.Now,
		lookups: lookups,
	}
}

type branchRef struct {
	Branch string `json:"branch" validate:"required,branch"`
}

// manages reports whether actor may administer products of branch.
func manages(actor store.User, branch string) bool {
	switch actor.Role {
	case profile.RoleOwner:
		return true
	case profile.RoleBranchStaff:
		return actor.Branch == branch
	}
	return false
}

// AddProduct creates a product. Staff always add to their own branch.
func (s *service) AddProduct(ctx context.Context, actor store.User, in ProductInput) (store.Product, error) {
	switch actor.Role {
	case profile.RoleBranchStaff:
		in.Branch = actor.Branch
	case profile.RoleOwner:
		if in.Branch == "" {
			return store.Product{}, apperror.ErrInvalidInput.WithMessage("branch is required")
		}
	default:
		return store.Product{}, apperror.ErrForbidden
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Mode == "" {
		in.Mode = pricing.ModeAuto
	}
	if in.DiscountType == "" {
		in.DiscountType = pricing.DiscountNone
	}
	if err := validation.Struct(in); err != nil {
		return store.Product{}, err
	}

	var out store.Product
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		now := s.now().UTC()
		p := &store.Product{
			ID:          snap.NextID(store.KindProducts),
			Title:       in.Title,
			Branch:      in.Branch,
			Hierarchy:   in.Hierarchy,
			ProfessorID: in.ProfessorID,
			Rule: pricing.Rule{
				Pages:         in.Pages,
				Mode:          in.Mode,
				FixedPrice:    in.FixedPrice,
				ExtraKey:      in.ExtraKey,
				DiscountType:  in.DiscountType,
				DiscountValue: in.DiscountValue,
			},
			Hidden:    in.Hidden,
			Note:      in.Note,
			FileRef:   in.FileRef,
			ThumbRef:  in.ThumbRef,
			CreatedAt: now,
			UpdatedAt: now,
		}
		snap.Products = append(snap.Products, p)
		out = *p
		return nil
	})
	if err != nil {
		return store.Product{}, err
	}

	s.cache.SafeInvalidatePattern(ctx, "listing:*")
	s.logger.InfoContext(ctx, "product added", "product_id", out.ID, "branch", out.Branch, "by", actor.ID)
	return out, nil
}

// UpdateProduct applies the non-nil fields of patch. Staff only edit their
// own branch.
func (s *service) UpdateProduct(ctx context.Context, actor store.User, id int64, patch ProductPatch) (store.Product, error) {
	if !actor.Role.IsStaff() {
		return store.Product{}, apperror.ErrForbidden
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if err := validation.Struct(patch); err != nil {
		return store.Product{}, err
	}

	var out store.Product
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		p := snap.ProductByID(id)
		if p == nil {
			return apperror.ErrNotFound.WithMessage("product not found")
		}
		if !manages(actor, p.Branch) {
			return apperror.ErrForbidden
		}
		patch.apply(p)
		p.UpdatedAt = s.now().UTC()
		out = *p
		return nil
	})
	if err != nil {
		return store.Product{}, err
	}

	s.cache.SafeInvalidatePattern(ctx, "listing:*")
	return out, nil
}

// RemoveProduct deletes a product. Past orders keep their snapshot.
func (s *service) RemoveProduct(ctx context.Context, actor store.User, id int64) error {
	if !actor.Role.IsStaff() {
		return apperror.ErrForbidden
	}

	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		p := snap.ProductByID(id)
		if p == nil {
			return apperror.ErrNotFound.WithMessage("product not found")
		}
		if !manages(actor, p.Branch) {
			return apperror.ErrForbidden
		}
		snap.RemoveProduct(id)
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.SafeInvalidatePattern(ctx, "listing:*")
	s.logger.InfoContext(ctx, "product removed", "product_id", id, "by", actor.ID)
	return nil
}

// ListForUser returns the visible, unhidden products newest first with their
// current prices.
func (s *service) ListForUser(ctx context.Context, user store.User, q Query) ([]Listing, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list", trace.WithAttributes(
		attribute.Int64("user.id", user.ID),
	))
	defer span.End()

	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}

	key := fmt.Sprintf("listing:%d:%d:%s", s.store.Revision(), user.ID, q.cacheKey())
	var cached []Listing
	switch err := s.cache.Get(ctx, key, &cached); {
	case err == nil:
		s.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	case errors.Is(err, cache.ErrNotFound):
		s.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))
	case errors.Is(err, cache.ErrNotAvailable):
	default:
		s.logger.WarnContext(ctx, "listing cache read failed", "error", err)
	}

	var (
		out      []Listing
		revision int64
	)
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		revision = snap.Revision
		current := snap.UserByID(user.ID)
		if current == nil {
			return apperror.ErrUnauthenticated
		}

		subject := current.Subject()
		var matched []*store.Product
		for _, p := range snap.Products {
			if p.Hidden || !profile.IsVisible(p.Target(), subject) {
				continue
			}
			if current.Role == profile.RoleBranchStaff && p.Branch != current.Branch {
				continue
			}
			if q.Branch != "" && p.Branch != q.Branch {
				continue
			}
			if !q.matches(p) {
				continue
			}
			if q.Search != "" && !strings.Contains(strings.ToLower(p.Title), q.Search) {
				continue
			}
			matched = append(matched, p)
		}
		newestFirst(matched)

		limit := q.Limit
		if limit <= 0 {
			branch := current.Branch
			if branch == "" {
				branch = q.Branch
			}
			limit = min(snap.BranchConfig(branch).LatestN, MaxPageSize)
		}
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
		if len(matched) > limit {
			matched = matched[:limit]
		}

		out = s.price(snap, matched)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	key = fmt.Sprintf("listing:%d:%d:%s", revision, user.ID, q.cacheKey())
	if err := s.cache.Set(ctx, key, out, listingTTL); err != nil {
		s.logger.WarnContext(ctx, "listing cache write failed", "error", err)
	}
	span.SetAttributes(attribute.Int("catalog.results", len(out)))
	return out, nil
}

// AdminList returns every product of branch, hidden ones included. Staff are
// limited to their own branch; the owner sees all branches when branch is
// empty.
func (s *service) AdminList(ctx context.Context, actor store.User, branch string) ([]Listing, error) {
	switch actor.Role {
	case profile.RoleBranchStaff:
		if branch != "" && branch != actor.Branch {
			return nil, apperror.ErrForbidden
		}
		branch = actor.Branch
	case profile.RoleOwner:
	default:
		return nil, apperror.ErrForbidden
	}

	var out []Listing
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		var matched []*store.Product
		for _, p := range snap.Products {
			if branch == "" || p.Branch == branch {
				matched = append(matched, p)
			}
		}
		newestFirst(matched)
		out = s.price(snap, matched)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Quote prices a single product. Products a customer may not see do not
// exist as far as they are concerned.
func (s *service) Quote(ctx context.Context, user store.User, id int64) (Listing, error) {
	var out Listing
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		p := snap.ProductByID(id)
		if p == nil {
			return apperror.ErrNotFound.WithMessage("product not found")
		}
		if user.Role == profile.RoleCustomer {
			current := snap.UserByID(user.ID)
			if current == nil || p.Hidden || !profile.IsVisible(p.Target(), current.Subject()) {
				return apperror.ErrNotFound.WithMessage("product not found")
			}
		}
		out = s.price(snap, []*store.Product{p})[0]
		return nil
	})
	return out, err
}

// BranchConfig returns the pricing settings of branch. Everyone but the
// owner reads their own branch.
func (s *service) BranchConfig(ctx context.Context, actor store.User, branch string) (pricing.Config, error) {
	if actor.Role != profile.RoleOwner {
		branch = actor.Branch
	}
	if err := validation.Struct(branchRef{Branch: branch}); err != nil {
		return pricing.Config{}, err
	}

	var out pricing.Config
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		out = snap.BranchConfig(branch)
		return nil
	})
	return out, err
}

// UpdateBranchConfig replaces the pricing settings of branch.
func (s *service) UpdateBranchConfig(ctx context.Context, actor store.User, branch string, cfg pricing.Config) (pricing.Config, error) {
	switch actor.Role {
	case profile.RoleBranchStaff:
		if branch == "" {
			branch = actor.Branch
		}
		if branch != actor.Branch {
			return pricing.Config{}, apperror.ErrForbidden
		}
	case profile.RoleOwner:
	default:
		return pricing.Config{}, apperror.ErrForbidden
	}
	if err := validation.Struct(branchRef{Branch: branch}); err != nil {
		return pricing.Config{}, err
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if err := validation.Struct(cfg); err != nil {
		return pricing.Config{}, err
	}

	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		snap.Branches[branch] = cfg
		return nil
	})
	if err != nil {
		return pricing.Config{}, err
	}

	s.cache.SafeInvalidatePattern(ctx, "listing:*")
	s.logger.InfoContext(ctx, "branch settings updated", "branch", branch, "by", actor.ID)
	return cfg, nil
}

func (s *service) price(snap *store.Snapshot, products []*store.Product) []Listing {
	now := s.now()
	out := make([]Listing, 0, len(products))
	for _, p := range products {
		cfg := snap.BranchConfig(p.Branch)
		window := time.Duration(cfg.NewBadgeWindowDays) * 24 * time.Hour
		out = append(out, Listing{
			Product:  *p,
			Quote:    pricing.Price(p.Rule, cfg),
			Currency: cfg.Currency,
			IsNew:    now.Sub(p.CreatedAt) < window,
		})
	}
	return out
}

func newestFirst(products []*store.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID > products[j].ID
	})
}
