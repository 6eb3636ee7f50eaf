package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NirnayK/InvoxAI-sub000/constants"
	repo "github.com/NirnayK/InvoxAI-sub000/internal/repository"
)

func TestImportDirectorySkipsUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"invoice.pdf", "scan.PNG", "notes.txt", "archive.zip"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := repo.OpenSQLite(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(logger) })
	files := repo.NewInvoiceFileRepository(db, logger)

	ctx := context.Background()
	ids, err := importDirectory(ctx, files, dir, logger)
	require.NoError(t, err)
	require.Len(t, ids, 2, "only allowed extensions are imported")

	imported, err := files.ListByIDs(ctx, ids)
	require.NoError(t, err)
	byName := make(map[string]string, len(imported))
	for _, f := range imported {
		byName[f.Filename] = f.MimeType
		require.Equal(t, constants.FileStatusUnprocessed, f.Status)
	}
	require.Equal(t, map[string]string{
		"invoice.pdf": "application/pdf",
		"scan.PNG":    "image/png",
	}, byName)
}
