package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRecord is the login projection of an account row.
type CredentialRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	IsStaff      bool
}

// UserSummary is the public projection of an account (no password hash).
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// NewUser carries the columns written when an account is created.
type NewUser struct {
	Username     string
	PasswordHash string
	Email        string
	Role         string
	IsStaff      bool
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	// FindByUsername matches username exactly; ErrUserNotFound when absent.
	FindByUsername(ctx context.Context, username string) (*CredentialRecord, error)
	// FindByID returns ErrUserNotFound when absent.
	FindByID(ctx context.Context, id int64) (*UserSummary, error)
	CountMatching(ctx context.Context, filter FilterSpec) (int, error)
	// FetchPage returns at most window.Limit rows ordered by id.
	FetchPage(ctx context.Context, filter FilterSpec, window PageWindow) ([]UserSummary, error)
	Create(ctx context.Context, u NewUser) (int64, error)
	HasStaff(ctx context.Context) (bool, error)
}

// PgUserRepository implements UserRepository on the accounts_user table using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*CredentialRecord, error) {
	const q = `SELECT id, password, COALESCE(role, 'CUSTOMER'), is_staff FROM accounts_user WHERE username = $1`
	u := CredentialRecord{Username: username}
	if err := r.db.QueryRow(ctx, q, username).Scan(&u.ID, &u.PasswordHash, &u.Role, &u.IsStaff); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*UserSummary, error) {
	const q = `SELECT id, username, COALESCE(role, 'CUSTOMER') FROM accounts_user WHERE id = $1`
	var u UserSummary
	if err := r.db.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) CountMatching(ctx context.Context, filter FilterSpec) (int, error) {
	where, args := buildUserFilter(filter)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)::int FROM accounts_user WHERE `+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *PgUserRepository) FetchPage(ctx context.Context, filter FilterSpec, window PageWindow) ([]UserSummary, error) {
	q, args := buildFetchPageQuery(filter, window)
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]UserSummary, 0, window.Limit)
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *PgUserRepository) Create(ctx context.Context, u NewUser) (int64, error) {
	const q = `INSERT INTO accounts_user
		(username, password, email, first_name, last_name, role, is_staff, is_active, is_superuser, date_joined)
		VALUES ($1, $2, $3, '', '', $4, $5, true, false, NOW())
		RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, u.Username, u.PasswordHash, u.Email, u.Role, u.IsStaff).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *PgUserRepository) HasStaff(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM accounts_user WHERE is_staff LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// buildUserFilter renders the WHERE clause for filter. Absent filters contribute no
// predicate; present ones are ANDed. The search text is matched as a literal substring.
func buildUserFilter(filter FilterSpec) (string, []any) {
	var conds []string
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		conds = append(conds, "username ILIKE $"+strconv.Itoa(len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conds = append(conds, "COALESCE(role, 'CUSTOMER') = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "TRUE", args
	}
	return strings.Join(conds, " AND "), args
}

func buildFetchPageQuery(filter FilterSpec, window PageWindow) (string, []any) {
	where, args := buildUserFilter(filter)
	args = append(args, window.Limit, window.Offset)
	q := fmt.Sprintf(`SELECT id, username, COALESCE(role, 'CUSTOMER') FROM accounts_user WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	return q, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
