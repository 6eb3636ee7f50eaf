package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NirnayK/InvoxAI-sub000/constants"
	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/entity"
)

// InvoiceFileRepository is the single writer of status and parsed_details
// during a batch run.
type InvoiceFileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.InvoiceFile, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.InvoiceFile, error)
	ListByStatus(ctx context.Context, status constants.FileStatus) ([]*entity.InvoiceFile, error)
	Create(ctx context.Context, f *entity.InvoiceFile) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus) error
	UpdateParsedDetails(ctx context.Context, id uuid.UUID, payload []byte, needsReview bool) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

type invoiceFileRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewInvoiceFileRepository(db *DB, logger *slog.Logger) InvoiceFileRepository {
	return &invoiceFileRepo{
		db:     db,
		logger: logger,
	}
}

const invoiceFileColumns = `id, filename, mime_type, source_path, status, parsed_details, needs_review, error_message, uploaded_at, updated_at`

func (r *invoiceFileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.InvoiceFile, error) {
	q := rebind(r.db.Dialect, `SELECT `+invoiceFileColumns+` FROM invoice_file WHERE id = ?`)
	row := r.db.SQL.QueryRowContext(ctx, q, id.String())
	f, err := scanInvoiceFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("FILE_NOT_FOUND", id.String(), common.ErrNotFound)
	}
	return f, err
}

func (r *invoiceFileRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.InvoiceFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	q := rebind(r.db.Dialect, `SELECT `+invoiceFileColumns+` FROM invoice_file WHERE id IN (`+placeholders+`)`)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	rows, err := r.db.SQL.QueryContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list invoice files", "count", len(ids), "error", err)
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*entity.InvoiceFile, len(ids))
	for rows.Next() {
		f, err := scanInvoiceFile(rows)
		if err != nil {
			return nil, err
		}
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve caller order; progress counts depend on it.
	out := make([]*entity.InvoiceFile, 0, len(ids))
	for _, id := range ids {
		f, ok := byID[id]
		if !ok {
			return nil, common.NewAppError("FILE_NOT_FOUND", id.String(), common.ErrNotFound)
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *invoiceFileRepo) ListByStatus(ctx context.Context, status constants.FileStatus) ([]*entity.InvoiceFile, error) {
	q := rebind(r.db.Dialect, `SELECT `+invoiceFileColumns+` FROM invoice_file WHERE status = ? ORDER BY uploaded_at`)
	rows, err := r.db.SQL.QueryContext(ctx, q, string(status))
	if err != nil {
		r.logger.Error("failed to list invoice files by status", "status", status, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.InvoiceFile
	for rows.Next() {
		f, err := scanInvoiceFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *invoiceFileRepo) Create(ctx context.Context, f *entity.InvoiceFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Status == "" {
		f.Status = constants.FileStatusUnprocessed
	}
	now := time.Now().UTC()
	if f.UploadedAt.IsZero() {
		f.UploadedAt = now
	}
	f.UpdatedAt = now

	q := rebind(r.db.Dialect, `
		INSERT INTO invoice_file (`+invoiceFileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.SQL.ExecContext(ctx, q,
		f.ID.String(), f.Filename, f.MimeType, f.SourcePath, string(f.Status),
		nullableText(f.ParsedDetails), boolToInt(f.NeedsReview), f.ErrorMessage,
		f.UploadedAt, f.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create invoice file", "filename", f.Filename, "error", err)
		return err
	}
	return nil
}

func (r *invoiceFileRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus) error {
	q := rebind(r.db.Dialect, `UPDATE invoice_file SET status = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.SQL.ExecContext(ctx, q, string(status), time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to update invoice file status", "file_id", id, "status", status, "error", err)
		return err
	}
	return requireRow(res, id)
}

func (r *invoiceFileRepo) UpdateParsedDetails(ctx context.Context, id uuid.UUID, payload []byte, needsReview bool) error {
	q := rebind(r.db.Dialect, `
		UPDATE invoice_file
		SET parsed_details = ?, needs_review = ?, error_message = '', updated_at = ?
		WHERE id = ?`)
	res, err := r.db.SQL.ExecContext(ctx, q, nullableText(payload), boolToInt(needsReview), time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to update parsed details", "file_id", id, "error", err)
		return err
	}
	return requireRow(res, id)
}

func (r *invoiceFileRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	q := rebind(r.db.Dialect, `
		UPDATE invoice_file
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.SQL.ExecContext(ctx, q, string(constants.FileStatusFailed), message, time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to mark invoice file failed", "file_id", id, "error", err)
		return err
	}
	return requireRow(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoiceFile(row rowScanner) (*entity.InvoiceFile, error) {
	var (
		f       entity.InvoiceFile
		idStr   string
		status  string
		parsed  sql.NullString
		review  int
		errMsg  string
		upAt    time.Time
		updAt   time.Time
	)
	if err := row.Scan(&idStr, &f.Filename, &f.MimeType, &f.SourcePath, &status, &parsed, &review, &errMsg, &upAt, &updAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse file id: %w", err)
	}
	f.ID = id
	f.Status = constants.FileStatus(status)
	if parsed.Valid {
		f.ParsedDetails = []byte(parsed.String)
	}
	f.NeedsReview = review != 0
	f.ErrorMessage = errMsg
	f.UploadedAt = upAt
	f.UpdatedAt = updAt
	return &f, nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NewAppError("FILE_NOT_FOUND", id.String(), common.ErrNotFound)
	}
	return nil
}
