package core

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// maxPage keeps (page-1)*MaxPageSize inside int range.
	maxPage = math.MaxInt/MaxPageSize + 1
)

// ListingParams are the raw, untrusted listing query values.
type ListingParams struct {
	Search   string
	Role     string
	Page     string
	PageSize string
}

// FilterSpec is the normalized listing filter. Empty Search or Role means absent.
type FilterSpec struct {
	Search   string
	Role     string
	Page     int
	PageSize int
}

// PageWindow is the offset/limit slice of the ordered result set.
type PageWindow struct {
	Offset int
	Limit  int
}

// UserListResult is the listing response.
type UserListResult struct {
	Results  []UserSummary `json:"results"`
	Count    int           `json:"count"`
	Next     *string       `json:"next"`
	Previous *string       `json:"previous"`
}

// PlanListing normalizes raw query values. Out-of-range or unparsable values are
// corrected rather than rejected, and an unknown role is dropped.
func PlanListing(raw ListingParams, validRoles RoleSet) (FilterSpec, PageWindow) {
	f := FilterSpec{
		Search:   strings.TrimSpace(raw.Search),
		Page:     clamp(parseIntOr(raw.Page, 1), 1, maxPage),
		PageSize: clamp(parseIntOr(raw.PageSize, DefaultPageSize), 1, MaxPageSize),
	}
	if role := normalizeRole(raw.Role); validRoles.Contains(role) {
		f.Role = role
	}
	return f, PageWindow{Offset: (f.Page - 1) * f.PageSize, Limit: f.PageSize}
}

// NextLink is present while rows remain after this page.
func NextLink(f FilterSpec, w PageWindow, rows, total int) *string {
	if w.Offset+rows >= total {
		return nil
	}
	return pageLink(f.Page+1, f.PageSize)
}

// PreviousLink is present for every page after the first.
func PreviousLink(f FilterSpec) *string {
	if f.Page <= 1 {
		return nil
	}
	return pageLink(f.Page-1, f.PageSize)
}

func pageLink(page, pageSize int) *string {
	s := "?page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(pageSize)
	return &s
}

func parseIntOr(s string, fallback int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			if strings.HasPrefix(s, "-") {
				return math.MinInt
			}
			return math.MaxInt
		}
		return fallback
	}
	return n
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// ListingService serves the user listing and single-user lookups.
type ListingService struct {
	users   UserRepository
	roles   RoleSet
	logger  logrus.FieldLogger
	metrics *Metrics
}

func NewListingService(users UserRepository, roles RoleSet, logger logrus.FieldLogger, metrics *Metrics) *ListingService {
	return &ListingService{users: users, roles: roles, logger: logger, metrics: metrics}
}

// ListUsers always succeeds: a store failure is logged and yields an empty page
// with a zero count.
func (s *ListingService) ListUsers(ctx context.Context, raw ListingParams) UserListResult {
	filter, window := PlanListing(raw, s.roles)

	rows, total, err := s.fetch(ctx, filter, window)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"search": filter.Search,
			"role":   filter.Role,
			"page":   filter.Page,
		}).Error("user listing degraded to empty result")
		s.metrics.ListingDegraded()
		rows, total = []UserSummary{}, 0
	}

	return UserListResult{
		Results:  rows,
		Count:    total,
		Next:     NextLink(filter, window, len(rows), total),
		Previous: PreviousLink(filter),
	}
}

func (s *ListingService) fetch(ctx context.Context, filter FilterSpec, window PageWindow) ([]UserSummary, int, error) {
	total, err := s.users.CountMatching(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.users.FetchPage(ctx, filter, window)
	if err != nil {
		return nil, 0, err
	}
	if rows == nil {
		rows = []UserSummary{}
	}
	return rows, total, nil
}

// GetUser returns the account with id, or ErrUserNotFound. Store failures are
// logged and reported as not found.
func (s *ListingService) GetUser(ctx context.Context, id int64) (*UserSummary, error) {
	if id <= 0 {
		return nil, ErrUserNotFound
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.WithError(err).WithField("user_id", id).Error("user lookup failed")
		}
		return nil, ErrUserNotFound
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}
	return u, nil
}
