// Package postgres は耐久ストアの SQL 実装。pgx(stdlib) の素の SQL を用い、ORM は使わない。
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/postgres/migrations"
)

// ApplicationRepository は出願集約を PostgreSQL で扱う耐久ストア実装。
// 監査ログは application_activity テーブルに追記し、本体の行は書き換えない。
type ApplicationRepository struct {
	db          *sql.DB
	migrateOnce sync.Once
	migrateErr  error
}

// NewApplicationRepository opens a pgx-backed pool for the given DSN.
// 実際の疎通確認とマイグレーションは Connect まで遅延する。
func NewApplicationRepository(dsn string) (*ApplicationRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &ApplicationRepository{db: db}, nil
}

// Name identifies the durable store variant in logs and health output.
func (r *ApplicationRepository) Name() string { return "postgres" }

// Connect は疎通確認を行い、初回成功時に埋め込みマイグレーションを適用する。
func (r *ApplicationRepository) Connect(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return err
	}
	r.migrateOnce.Do(func() {
		goose.SetBaseFS(migrations.Migrations)
		if err := goose.SetDialect("postgres"); err != nil {
			r.migrateErr = err
			return
		}
		r.migrateErr = goose.UpContext(ctx, r.db, ".")
	})
	return r.migrateErr
}

// Close releases the connection pool.
func (r *ApplicationRepository) Close(_ context.Context) error {
	return r.db.Close()
}

// Create inserts one normalized application row.
func (r *ApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	certs, err := json.Marshal(certificateRows(app.Certificates))
	if err != nil {
		return fmt.Errorf("%w: certificates marshal: %v", domain.ErrPersistence, err)
	}

	query := `INSERT INTO applications (
			id, student_name, email, phone_number, applied_program, gpa, age, national_id,
			test_score, id_photo_url, id_photo_stored_name, selfie_photo_url, selfie_photo_stored_name,
			certificates, submitted_at, application_status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	idPhotoURL, idPhotoName := fileRefColumns(app.IDPhoto)
	selfieURL, selfieName := fileRefColumns(app.SelfiePhoto)

	_, err = r.db.ExecContext(ctx, query,
		app.ID, app.StudentName, app.Email, app.PhoneNumber, app.AppliedProgram,
		app.GPA, app.Age, app.NationalID, app.TestScore,
		idPhotoURL, idPhotoName, selfieURL, selfieName,
		certs, app.SubmittedAt, string(app.Status), app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", domain.ErrPersistence, err)
	}
	return nil
}

// FindByID loads one application together with its activity log.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*domain.Application, error) {
	app, err := r.scanApplication(r.db.QueryRowContext(ctx, selectApplication+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	log, err := r.ActivityLog(ctx, id)
	if err != nil {
		return nil, err
	}
	app.ActivityLog = log
	return app, nil
}

// SearchByNationalID は部分一致検索。提出日時の降順・ID 昇順で安定した並びを返す。
func (r *ApplicationRepository) SearchByNationalID(ctx context.Context, fragment string) ([]domain.Application, error) {
	if fragment == "" {
		return []domain.Application{}, nil
	}

	pattern := "%" + escapeLike(fragment) + "%"
	rows, err := r.db.QueryContext(ctx,
		selectApplication+` WHERE national_id LIKE $1 ESCAPE '\' ORDER BY submitted_at DESC, id ASC`,
		pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	return r.collectApplications(rows)
}

// List returns one page ordered by submission time plus the total count.
func (r *ApplicationRepository) List(ctx context.Context, paging application.Paging) ([]domain.Application, int64, error) {
	paging = paging.Normalize()

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count: %v", domain.ErrPersistence, err)
	}

	rows, err := r.db.QueryContext(ctx,
		selectApplication+` ORDER BY submitted_at DESC, id ASC LIMIT $1 OFFSET $2`,
		paging.Limit, paging.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	items, err := r.collectApplications(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateStatus は行ロック（SELECT ... FOR UPDATE）でステータス更新と監査ログ追記を直列化する。
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, change domain.StatusChange, policy domain.TransitionPolicy) (*domain.Application, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT application_status FROM applications WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select for update: %v", domain.ErrPersistence, err)
	}

	from := domain.ApplicationStatus(current)
	if err := policy.Allowed(from, change.NewStatus); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE applications SET application_status = $1, updated_at = $2 WHERE id = $3`,
		string(change.NewStatus), change.Timestamp, id); err != nil {
		return nil, fmt.Errorf("%w: update status: %v", domain.ErrPersistence, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO application_activity (application_id, occurred_at, actor, from_status, to_status, note)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		id, change.Timestamp, change.Actor, current, string(change.NewStatus), change.Note); err != nil {
		return nil, fmt.Errorf("%w: insert activity: %v", domain.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrPersistence, err)
	}

	return r.FindByID(ctx, id)
}

// ActivityLog returns audit entries oldest first.
func (r *ApplicationRepository) ActivityLog(ctx context.Context, id string) ([]domain.ActivityEntry, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%w: exists: %v", domain.ErrPersistence, err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT occurred_at, actor, from_status, to_status, note
		 FROM application_activity WHERE application_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: activity: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	entries := make([]domain.ActivityEntry, 0)
	for rows.Next() {
		var entry domain.ActivityEntry
		var from, to string
		if err := rows.Scan(&entry.Timestamp, &entry.Actor, &from, &to, &entry.Note); err != nil {
			return nil, fmt.Errorf("%w: scan activity: %v", domain.ErrPersistence, err)
		}
		entry.FromStatus = domain.ApplicationStatus(from)
		entry.ToStatus = domain.ApplicationStatus(to)
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrPersistence, err)
	}
	return entries, nil
}

const selectApplication = `SELECT
	id, student_name, email, phone_number, applied_program, gpa, age, national_id,
	test_score, id_photo_url, id_photo_stored_name, selfie_photo_url, selfie_photo_stored_name,
	certificates, submitted_at, application_status, created_at, updated_at
	FROM applications`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ApplicationRepository) scanApplication(row rowScanner) (*domain.Application, error) {
	var (
		app         domain.Application
		status      string
		idPhotoURL  sql.NullString
		idPhotoName sql.NullString
		selfieURL   sql.NullString
		selfieName  sql.NullString
		certsRaw    []byte
	)
	err := row.Scan(
		&app.ID, &app.StudentName, &app.Email, &app.PhoneNumber, &app.AppliedProgram,
		&app.GPA, &app.Age, &app.NationalID, &app.TestScore,
		&idPhotoURL, &idPhotoName, &selfieURL, &selfieName,
		&certsRaw, &app.SubmittedAt, &status, &app.CreatedAt, &app.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", domain.ErrPersistence, err)
	}

	app.Status = domain.ApplicationStatus(status)
	app.SubmittedAt = app.SubmittedAt.UTC()
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	if idPhotoURL.Valid {
		app.IDPhoto = &domain.FileRef{URL: idPhotoURL.String, StoredName: idPhotoName.String}
	}
	if selfieURL.Valid {
		app.SelfiePhoto = &domain.FileRef{URL: selfieURL.String, StoredName: selfieName.String}
	}

	var certs []certificateRow
	if len(certsRaw) > 0 {
		if err := json.Unmarshal(certsRaw, &certs); err != nil {
			return nil, fmt.Errorf("%w: certificates unmarshal: %v", domain.ErrPersistence, err)
		}
	}
	app.Certificates = make([]domain.CertificateRef, 0, len(certs))
	for _, cert := range certs {
		app.Certificates = append(app.Certificates, domain.CertificateRef{
			URL:          cert.URL,
			OriginalName: cert.OriginalName,
			StoredName:   cert.StoredName,
		})
	}
	app.ActivityLog = []domain.ActivityEntry{}
	return &app, nil
}

func (r *ApplicationRepository) collectApplications(rows *sql.Rows) ([]domain.Application, error) {
	items := make([]domain.Application, 0)
	for rows.Next() {
		app, err := r.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrPersistence, err)
	}
	return items, nil
}

// certificateRow は certificates JSONB 列の 1 要素。
type certificateRow struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	StoredName   string `json:"storedName"`
}

func certificateRows(refs []domain.CertificateRef) []certificateRow {
	rows := make([]certificateRow, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, certificateRow{URL: ref.URL, OriginalName: ref.OriginalName, StoredName: ref.StoredName})
	}
	return rows
}

func fileRefColumns(ref *domain.FileRef) (sql.NullString, sql.NullString) {
	if ref == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: ref.URL, Valid: true}, sql.NullString{String: ref.StoredName, Valid: true}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

var _ application.ApplicationRepository = (*ApplicationRepository)(nil)
