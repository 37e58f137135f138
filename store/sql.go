package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"civicservice-be/models"
	"civicservice-be/services"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLStore serves Postgres (lib/pq) and SQLite (modernc) from the same
// queries. Statements are written with ? placeholders and rebound for
// Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var (
	_ services.Store     = (*SQLStore)(nil)
	_ services.UserStore = (*SQLStore)(nil)
)

// OpenSQL connects, pings and creates the schema
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// one writer keeps sqlite from returning SQLITE_BUSY and keeps
		// :memory: databases alive on a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := CreateSchema(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db, dialect), nil
}

// NewSQLStore wraps an already opened handle without touching the schema
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $1..$n for Postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

const requestColumns = "r.id, r.category, r.description, r.address, r.neighborhood, r.latitude, r.longitude, r.status, r.created_at, r.updated_at, r.submitted_by_id"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (models.ServiceRequest, error) {
	var (
		r                    models.ServiceRequest
		id, category, status string
		neighborhood         sql.NullString
		submittedBy          sql.NullString
		lat, lng             sql.NullFloat64
	)
	err := row.Scan(&id, &category, &r.Description, &r.Address, &neighborhood, &lat, &lng, &status, &r.CreatedAt, &r.UpdatedAt, &submittedBy)
	if err != nil {
		return r, err
	}

	if r.ID, err = uuid.Parse(id); err != nil {
		return r, fmt.Errorf("request id %q: %w", id, err)
	}
	if r.Category, err = models.ParseCategory(category); err != nil {
		return r, err
	}
	if r.Status, err = models.ParseStatus(status); err != nil {
		return r, err
	}
	if neighborhood.Valid {
		r.Neighborhood = &neighborhood.String
	}
	if submittedBy.Valid {
		r.SubmittedByID = &submittedBy.String
	}
	if lat.Valid {
		r.Latitude = &lat.Float64
	}
	if lng.Valid {
		r.Longitude = &lng.Float64
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func scanRequests(rows *sql.Rows) ([]models.ServiceRequest, error) {
	defer rows.Close()
	out := []models.ServiceRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertRequest(ctx context.Context, r *models.ServiceRequest) error {
	_, err := s.exec(ctx, `
		INSERT INTO service_requests
			(id, category, description, address, neighborhood, latitude, longitude, status, created_at, updated_at, submitted_by_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Category.String(), r.Description, r.Address, r.Neighborhood,
		r.Latitude, r.Longitude, r.Status.String(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(), r.SubmittedByID,
	)
	return err
}

func (s *SQLStore) FindRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	row := s.queryRow(ctx, "SELECT "+requestColumns+" FROM service_requests r WHERE r.id = ?", id.String())
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func whereClause(f models.RequestFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != nil {
		conds = append(conds, "r.status = ?")
		args = append(args, f.Status.String())
	}
	if f.Category != nil {
		conds = append(conds, "r.category = ?")
		args = append(args, f.Category.String())
	}
	if f.SubmittedByID != nil {
		conds = append(conds, "r.submitted_by_id = ?")
		args = append(args, *f.SubmittedByID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(key models.SortKey) string {
	switch key {
	case models.SortCreatedAtAsc:
		return " ORDER BY r.created_at ASC, r.id ASC"
	case models.SortUpdatedAtAsc:
		return " ORDER BY r.updated_at ASC, r.id ASC"
	case models.SortUpdatedAtDesc:
		return " ORDER BY r.updated_at DESC, r.id ASC"
	case models.SortUpvotesDesc:
		return " ORDER BY COALESCE(u.cnt, 0) DESC, r.created_at DESC, r.id ASC"
	default:
		return " ORDER BY r.created_at DESC, r.id ASC"
	}
}

func (s *SQLStore) QueryRequests(ctx context.Context, q models.RequestQuery) ([]models.ServiceRequest, int64, error) {
	where, args := whereClause(q.Filter)

	var total int64
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM service_requests r"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	from := " FROM service_requests r"
	if q.Sort == models.SortUpvotesDesc {
		from += " LEFT JOIN (SELECT service_request_id, COUNT(*) AS cnt FROM upvotes GROUP BY service_request_id) u" +
			" ON u.service_request_id = r.id"
	}
	stmt := "SELECT " + requestColumns + from + where + orderClause(q.Sort) + " LIMIT ? OFFSET ?"

	rows, err := s.query(ctx, stmt, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("select requests: %w", err)
	}
	requests, err := scanRequests(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan requests: %w", err)
	}
	return requests, total, nil
}

func (s *SQLStore) AllRequests(ctx context.Context) ([]models.ServiceRequest, error) {
	rows, err := s.query(ctx, "SELECT "+requestColumns+" FROM service_requests r"+orderClause(models.SortCreatedAtAsc))
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func (s *SQLStore) UpdateRequestStatus(ctx context.Context, r *models.ServiceRequest) error {
	res, err := s.exec(ctx, "UPDATE service_requests SET status = ?, updated_at = ? WHERE id = ?",
		r.Status.String(), r.UpdatedAt.UTC(), r.ID.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteRequest removes a request; upvotes go with it via ON DELETE CASCADE
func (s *SQLStore) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	res, err := s.exec(ctx, "DELETE FROM service_requests WHERE id = ?", id.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func scanUpvote(row rowScanner) (models.Upvote, error) {
	var (
		u             models.Upvote
		id, requestID string
		userID, ip    sql.NullString
	)
	if err := row.Scan(&id, &requestID, &userID, &ip, &u.CreatedAt); err != nil {
		return u, err
	}
	var err error
	if u.ID, err = uuid.Parse(id); err != nil {
		return u, fmt.Errorf("upvote id %q: %w", id, err)
	}
	if u.ServiceRequestID, err = uuid.Parse(requestID); err != nil {
		return u, fmt.Errorf("upvote request id %q: %w", requestID, err)
	}
	if userID.Valid {
		u.UserID = &userID.String
	}
	if ip.Valid {
		u.IPAddress = &ip.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

const upvoteColumns = "id, service_request_id, user_id, ip_address, created_at"

func (s *SQLStore) ListUpvotes(ctx context.Context, requestIDs []uuid.UUID) ([]models.Upvote, error) {
	if len(requestIDs) == 0 {
		return []models.Upvote{}, nil
	}
	placeholders := make([]string, len(requestIDs))
	args := make([]any, len(requestIDs))
	for i, id := range requestIDs {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	rows, err := s.query(ctx,
		"SELECT "+upvoteColumns+" FROM upvotes WHERE service_request_id IN ("+strings.Join(placeholders, ", ")+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Upvote{}
	for rows.Next() {
		u, err := scanUpvote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountUpvotes(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRow(ctx, "SELECT COUNT(*) FROM upvotes").Scan(&n)
	return n, err
}

func (s *SQLStore) FindUpvote(ctx context.Context, requestID uuid.UUID, actor models.Actor) (*models.Upvote, error) {
	var row *sql.Row
	switch {
	case actor.UserID != "":
		row = s.queryRow(ctx,
			"SELECT "+upvoteColumns+" FROM upvotes WHERE service_request_id = ? AND user_id = ?",
			requestID.String(), actor.UserID)
	case actor.IPAddress != "":
		row = s.queryRow(ctx,
			"SELECT "+upvoteColumns+" FROM upvotes WHERE service_request_id = ? AND ip_address = ? AND user_id IS NULL",
			requestID.String(), actor.IPAddress)
	default:
		return nil, services.ErrNotFound
	}

	u, err := scanUpvote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) InsertUpvote(ctx context.Context, u *models.Upvote) error {
	_, err := s.exec(ctx,
		"INSERT INTO upvotes ("+upvoteColumns+") VALUES (?, ?, ?, ?, ?)",
		u.ID.String(), u.ServiceRequestID.String(), u.UserID, u.IPAddress, u.CreatedAt.UTC())
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return services.ErrDuplicateUpvote
	case isForeignKeyViolation(err):
		return services.ErrNotFound
	default:
		return err
	}
}

func (s *SQLStore) DeleteUpvote(ctx context.Context, id uuid.UUID) error {
	res, err := s.exec(ctx, "DELETE FROM upvotes WHERE id = ?", id.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) InsertUser(ctx context.Context, u *models.User) error {
	_, err := s.exec(ctx,
		"INSERT INTO users (id, email, first_name, last_name, password, roles, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.FirstName, u.LastName, u.Password,
		strings.Join(models.RoleNames(u.Roles), ","), u.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return services.ErrDuplicateEmail
	}
	return err
}

const userColumns = "id, email, first_name, last_name, password, roles, created_at"

func scanUser(row rowScanner) (models.User, error) {
	var (
		u     models.User
		roles string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Password, &roles, &u.CreatedAt); err != nil {
		return u, err
	}
	if roles != "" {
		u.Roles = models.ParseRoles(strings.Split(roles, ","))
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *SQLStore) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "LOWER(email) = LOWER(?)", email)
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SQLiteDSN builds an in-process SQLite DSN with foreign keys enabled and
// sortable timestamps.
func SQLiteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_time_format=sqlite"
}
