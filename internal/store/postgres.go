package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"visitplan/internal/model"
)

//go:embed schema.sql
var schema string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables if they do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

const jobColumns = `id::text, status, request, result, error, COALESCE(callback_url,''), created_at, updated_at, started_at, finished_at`

func (p *Postgres) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	job.ID = uuid.New().String()
	if job.Status == "" {
		job.Status = model.JobQueued
	}
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return model.Job{}, err
	}
	err = p.db.QueryRowContext(ctx, `INSERT INTO jobs (id, status, request, callback_url) VALUES ($1,$2,$3,$4) RETURNING created_at, updated_at`,
		job.ID, job.Status, reqJSON, nullIfEmpty(job.CallbackURL)).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return model.Job{}, err
	}
	return job, nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Job{}, ErrNotFound
	}
	row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	return j, err
}

func (p *Postgres) ListJobs(ctx context.Context, status, cursor string, limit int) ([]model.Job, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE ($1 = '' OR status = $1)`
	args := []any{status}
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
		q += ` AND (created_at, id) > (SELECT created_at, id FROM jobs WHERE id = $2)`
		args = append(args, cursor)
	}
	q += fmt.Sprintf(` ORDER BY created_at, id LIMIT %d`, limit+1)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func (p *Postgres) UpdateJob(ctx context.Context, job model.Job) error {
	result, err := marshalNullable(job.Result)
	if err != nil {
		return err
	}
	jobErr, err := marshalNullable(job.Error)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE jobs SET status=$2, result=$3, error=$4, started_at=$5, finished_at=$6, updated_at=now() WHERE id=$1`,
		job.ID, job.Status, result, jobErr, job.StartedAt, job.FinishedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (model.Job, error) {
	var (
		j                     model.Job
		reqJSON               []byte
		resJSON, errJSON      []byte
		startedAt, finishedAt sql.NullTime
	)
	if err := r.Scan(&j.ID, &j.Status, &reqJSON, &resJSON, &errJSON, &j.CallbackURL, &j.CreatedAt, &j.UpdatedAt, &startedAt, &finishedAt); err != nil {
		return model.Job{}, err
	}
	if err := json.Unmarshal(reqJSON, &j.Request); err != nil {
		return model.Job{}, fmt.Errorf("job %s request: %w", j.ID, err)
	}
	if len(resJSON) > 0 {
		j.Result = &model.OptimizeResponse{}
		if err := json.Unmarshal(resJSON, j.Result); err != nil {
			return model.Job{}, fmt.Errorf("job %s result: %w", j.ID, err)
		}
	}
	if len(errJSON) > 0 {
		j.Error = &model.JobError{}
		if err := json.Unmarshal(errJSON, j.Error); err != nil {
			return model.Job{}, fmt.Errorf("job %s error: %w", j.ID, err)
		}
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return j, nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, jobID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, job_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(jobID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

const deliveryColumns = `id::text, COALESCE(job_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at`

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+`
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
		id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, jobID string) ([]WebhookDelivery, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return []WebhookDelivery{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE job_id=$1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

func scanDeliveries(rows *sql.Rows) ([]WebhookDelivery, error) {
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var (
			d           WebhookDelivery
			deliveredAt sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.JobID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts,
			&d.NextAttemptAt, &d.LastError, &d.ResponseCode, &d.LatencyMs, &deliveredAt); err != nil {
			return nil, err
		}
		if deliveredAt.Valid {
			d.DeliveredAt = &deliveredAt.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// computeDedupKey prefers the event id of the payload and falls back to a
// short content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalNullable encodes v as JSON, or SQL NULL when v is a nil pointer.
func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
