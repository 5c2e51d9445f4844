package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	statusMember  = "member"
	statusPending = "pending"
)

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func wrapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// nullString stores an empty string as NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database without running migrations.
func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if driver == "sqlite3" {
		// a single writer avoids "database is locked" inside transactions
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func setupGoose(driver string) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return nil
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sqlx.DB, driver string) error {
	if err := setupGoose(driver); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// MigrationStatus prints the state of every migration through goose's logger.
func MigrationStatus(ctx context.Context, db *sqlx.DB, driver string) error {
	if err := setupGoose(driver); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db.DB, "migrations")
}

// New creates a new SQL store and brings the schema up to date.
func New(driver, dsn string) (*Store, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(context.Background(), db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deleteByID(ctx context.Context, db dbInterface, table, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// versionMismatch tells a missing row apart from a stale version after a
// versioned UPDATE touched nothing.
func versionMismatch(ctx context.Context, db dbInterface, table, id string) error {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table+` WHERE id = $1`, id); err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// ============================================
// Ideas
// ============================================

const ideaColumns = `id, name, description, author, post_time`

func (s *Store) CreateIdea(ctx context.Context, idea *domain.Idea) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ideas (`+ideaColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		idea.ID, idea.Name, idea.Description, idea.Author, idea.PostTime)
	return wrapUniqueError(err)
}

func (s *Store) GetIdea(ctx context.Context, id string) (*domain.Idea, error) {
	var idea domain.Idea
	err := s.db.GetContext(ctx, &idea, `SELECT `+ideaColumns+` FROM ideas WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return &idea, nil
}

func (s *Store) ListIdeas(ctx context.Context) ([]*domain.Idea, error) {
	ideas := []*domain.Idea{}
	err := s.db.SelectContext(ctx, &ideas, `SELECT `+ideaColumns+` FROM ideas ORDER BY post_time, id`)
	if err != nil {
		return nil, err
	}
	return ideas, nil
}

func (s *Store) DeleteIdea(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "ideas", id)
}

// ============================================
// Projects
// ============================================

const projectColumns = `id, name, description, author, post_time, version, created_at, updated_at`

func insertVotes(ctx context.Context, db dbInterface, projectID string, votes []domain.UserID) error {
	for i, u := range votes {
		_, err := db.ExecContext(ctx,
			`INSERT INTO project_votes (project_id, user_id, position) VALUES ($1, $2, $3)`,
			projectID, u, i)
		if err != nil {
			return wrapUniqueError(err)
		}
	}
	return nil
}

func getVotes(ctx context.Context, db dbInterface, projectID string) ([]domain.UserID, error) {
	votes := []domain.UserID{}
	err := db.SelectContext(ctx, &votes,
		`SELECT user_id FROM project_votes WHERE project_id = $1 ORDER BY position`, projectID)
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func (s *Store) CreateProject(ctx context.Context, project *domain.Project) error {
	if project.Version == 0 {
		project.Version = 1
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (`+projectColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			project.ID, project.Name, project.Description, project.Author, project.PostTime,
			project.Version, project.CreatedAt, project.UpdatedAt)
		if err != nil {
			return wrapUniqueError(err)
		}
		return insertVotes(ctx, tx, project.ID, project.Votes)
	})
}

func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	err := s.db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNoRows(err)
	}
	if project.Votes, err = getVotes(ctx, s.db, id); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	projects := []*domain.Project{}
	err := s.db.SelectContext(ctx, &projects, `SELECT `+projectColumns+` FROM projects ORDER BY post_time, id`)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.Votes, err = getVotes(ctx, s.db, p.ID); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

func (s *Store) UpdateProject(ctx context.Context, project *domain.Project) error {
	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE projects SET name = $1, description = $2, author = $3, version = version + 1, updated_at = $4
			 WHERE id = $5 AND version = $6`,
			project.Name, project.Description, project.Author, now, project.ID, project.Version)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return versionMismatch(ctx, tx, "projects", project.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_votes WHERE project_id = $1`, project.ID); err != nil {
			return err
		}
		return insertVotes(ctx, tx, project.ID, project.Votes)
	})
	if err != nil {
		return err
	}
	project.Version++
	project.UpdatedAt = now
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_votes WHERE project_id = $1`, id); err != nil {
			return err
		}
		return deleteByID(ctx, tx, "projects", id)
	})
}

// ============================================
// Groups
// ============================================

const groupColumns = `id, name, public, owner, COALESCE(project_id, '') AS project_id, version, created_at, updated_at`

type memberRow struct {
	UserID domain.UserID `db:"user_id"`
	Status string        `db:"status"`
}

func insertGroupMembers(ctx context.Context, db dbInterface, group *domain.Group) error {
	pos := 0
	for _, set := range []struct {
		status string
		users  []domain.UserID
	}{
		{statusMember, group.Members},
		{statusPending, group.PendingUsers},
	} {
		for _, u := range set.users {
			_, err := db.ExecContext(ctx,
				`INSERT INTO group_members (group_id, user_id, status, position) VALUES ($1, $2, $3, $4)`,
				group.ID, u, set.status, pos)
			if err != nil {
				return wrapUniqueError(err)
			}
			pos++
		}
	}
	return nil
}

func loadGroupMembers(ctx context.Context, db dbInterface, group *domain.Group) error {
	var rows []memberRow
	err := db.SelectContext(ctx, &rows,
		`SELECT user_id, status FROM group_members WHERE group_id = $1 ORDER BY position`, group.ID)
	if err != nil {
		return err
	}
	group.Members = []domain.UserID{}
	group.PendingUsers = []domain.UserID{}
	for _, r := range rows {
		if r.Status == statusPending {
			group.PendingUsers = append(group.PendingUsers, r.UserID)
		} else {
			group.Members = append(group.Members, r.UserID)
		}
	}
	return nil
}

func getGroupWhere(ctx context.Context, db dbInterface, where string, arg any) (*domain.Group, error) {
	var group domain.Group
	err := db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE `+where, arg)
	if err != nil {
		return nil, wrapNoRows(err)
	}
	if err := loadGroupMembers(ctx, db, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func listGroupsWhere(ctx context.Context, db dbInterface, where string, args ...any) ([]*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY name`
	groups := []*domain.Group{}
	if err := db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, err
	}
	for _, g := range groups {
		if err := loadGroupMembers(ctx, db, g); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) error {
	if group.Version == 0 {
		group.Version = 1
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO groups (id, name, public, owner, project_id, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			group.ID, group.Name, group.Public, group.Owner, nullString(group.ProjectID),
			group.Version, group.CreatedAt, group.UpdatedAt)
		if err != nil {
			return wrapUniqueError(err)
		}
		return insertGroupMembers(ctx, tx, group)
	})
}

func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	return getGroupWhere(ctx, s.db, `id = $1`, id)
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (*domain.Group, error) {
	return getGroupWhere(ctx, s.db, `name = $1`, name)
}

func (s *Store) GetGroupByUser(ctx context.Context, user domain.UserID) (*domain.Group, error) {
	var groupID string
	err := s.db.GetContext(ctx, &groupID, `SELECT group_id FROM group_members WHERE user_id = $1`, user)
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return s.GetGroup(ctx, groupID)
}

func (s *Store) ListGroups(ctx context.Context) ([]*domain.Group, error) {
	return listGroupsWhere(ctx, s.db, "")
}

func (s *Store) ListGroupsByProject(ctx context.Context, projectID string) ([]*domain.Group, error) {
	return listGroupsWhere(ctx, s.db, `project_id = $1`, projectID)
}

func (s *Store) UpdateGroup(ctx context.Context, group *domain.Group) error {
	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE groups SET name = $1, public = $2, owner = $3, project_id = $4, version = version + 1, updated_at = $5
			 WHERE id = $6 AND version = $7`,
			group.Name, group.Public, group.Owner, nullString(group.ProjectID), now, group.ID, group.Version)
		if err != nil {
			return wrapUniqueError(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return versionMismatch(ctx, tx, "groups", group.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, group.ID); err != nil {
			return err
		}
		return insertGroupMembers(ctx, tx, group)
	})
	if err != nil {
		return err
	}
	group.Version++
	group.UpdatedAt = now
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, id); err != nil {
			return err
		}
		return deleteByID(ctx, tx, "groups", id)
	})
}

// ============================================
// Submissions
// ============================================

const submissionColumns = `id, text, url, weight, group_id, created_at`

func (s *Store) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.Text, sub.URL, sub.Weight, sub.GroupID, sub.CreatedAt)
	return wrapUniqueError(err)
}

// GetSubmissions returns the submissions with the given ids, skipping unknown ones.
func (s *Store) GetSubmissions(ctx context.Context, ids []string) ([]*domain.Submission, error) {
	subs := []*domain.Submission{}
	if len(ids) == 0 {
		return subs, nil
	}
	query, args, err := sqlx.In(`SELECT `+submissionColumns+` FROM submissions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &subs, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Submission, len(subs))
	for _, sub := range subs {
		byID[sub.ID] = sub
	}
	ordered := make([]*domain.Submission, 0, len(subs))
	for _, id := range ids {
		if sub, ok := byID[id]; ok {
			ordered = append(ordered, sub)
			delete(byID, id)
		}
	}
	return ordered, nil
}

func (s *Store) ListSubmissions(ctx context.Context, groupID string) ([]*domain.Submission, error) {
	subs := []*domain.Submission{}
	err := s.db.SelectContext(ctx, &subs,
		`SELECT `+submissionColumns+` FROM submissions WHERE group_id = $1 ORDER BY weight, created_at`, groupID)
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "submissions", id)
}

func (s *Store) DeleteAllSubmissionsForGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE group_id = $1`, groupID)
	return err
}
