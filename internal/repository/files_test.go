package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/NirnayK/InvoxAI-sub000/constants"
	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/entity"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenSQLite(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(logger) })
	return db
}

func testFileRepo(t *testing.T) InvoiceFileRepository {
	t.Helper()
	return NewInvoiceFileRepository(testDB(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedFile(t *testing.T, repo InvoiceFileRepository, name string) *entity.InvoiceFile {
	t.Helper()
	f := &entity.InvoiceFile{
		Filename:   name,
		MimeType:   "application/pdf",
		SourcePath: "/uploads/" + name,
	}
	require.NoError(t, repo.Create(context.Background(), f))
	return f
}

func TestCreateAndGetByID(t *testing.T) {
	repo := testFileRepo(t)
	f := seedFile(t, repo, "march.pdf")

	require.NotEqual(t, uuid.Nil, f.ID, "Create assigns an id")
	require.Equal(t, constants.FileStatusUnprocessed, f.Status, "Create defaults the status")

	got, err := repo.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	require.Equal(t, f.ID, got.ID)
	require.Equal(t, "march.pdf", got.Filename)
	require.Equal(t, constants.FileStatusUnprocessed, got.Status)
	require.Nil(t, got.ParsedDetails)
	require.False(t, got.NeedsReview)
	require.False(t, got.UploadedAt.IsZero())
}

func TestGetByIDMissing(t *testing.T) {
	repo := testFileRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListByIDsPreservesCallerOrder(t *testing.T) {
	repo := testFileRepo(t)
	a := seedFile(t, repo, "a.pdf")
	b := seedFile(t, repo, "b.pdf")
	c := seedFile(t, repo, "c.pdf")

	got, err := repo.ListByIDs(context.Background(), []uuid.UUID{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"c.pdf", "a.pdf", "b.pdf"}, []string{got[0].Filename, got[1].Filename, got[2].Filename})
}

func TestListByIDsMissingIDFails(t *testing.T) {
	repo := testFileRepo(t)
	a := seedFile(t, repo, "a.pdf")

	_, err := repo.ListByIDs(context.Background(), []uuid.UUID{a.ID, uuid.New()})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListByStatus(t *testing.T) {
	repo := testFileRepo(t)
	a := seedFile(t, repo, "a.pdf")
	b := seedFile(t, repo, "b.pdf")
	seedFile(t, repo, "c.pdf")

	ctx := context.Background()
	require.NoError(t, repo.UpdateStatus(ctx, a.ID, constants.FileStatusProcessing))
	require.NoError(t, repo.UpdateStatus(ctx, b.ID, constants.FileStatusProcessing))

	got, err := repo.ListByStatus(ctx, constants.FileStatusProcessing)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = repo.ListByStatus(ctx, constants.FileStatusFailed)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestUpdateParsedDetailsClearsError(t *testing.T) {
	repo := testFileRepo(t)
	f := seedFile(t, repo, "a.pdf")
	ctx := context.Background()

	require.NoError(t, repo.MarkFailed(ctx, f.ID, "first attempt blew up"))

	payload := []byte(`{"vendor_name":"Acme Corp","total":"12.00"}`)
	require.NoError(t, repo.UpdateParsedDetails(ctx, f.ID, payload, true))
	require.NoError(t, repo.UpdateStatus(ctx, f.ID, constants.FileStatusProcessed))

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, constants.FileStatusProcessed, got.Status)
	require.JSONEq(t, string(payload), string(got.ParsedDetails))
	require.True(t, got.NeedsReview)
	require.Empty(t, got.ErrorMessage, "a successful extraction clears the previous error")
}

func TestMarkFailed(t *testing.T) {
	repo := testFileRepo(t)
	f := seedFile(t, repo, "a.pdf")
	ctx := context.Background()

	require.NoError(t, repo.MarkFailed(ctx, f.ID, "all models exhausted"))

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, constants.FileStatusFailed, got.Status)
	require.Equal(t, "all models exhausted", got.ErrorMessage)
}

func TestUpdateStatusMissingRow(t *testing.T) {
	repo := testFileRepo(t)

	err := repo.UpdateStatus(context.Background(), uuid.New(), constants.FileStatusProcessed)
	require.ErrorIs(t, err, common.ErrNotFound)
}
