package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
)

// SaveDocument upserts document metadata. The binary payload is stored
// separately via SaveDocumentContent and may not exist at all; metadata
// has its own lifecycle.
func (s *Store) SaveDocument(ctx context.Context, doc *schema.Document) error {
	doc.SetDefaults()
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	doc.SavedAt = time.Now()

	indexed := 0
	if doc.Indexed {
		indexed = 1
	}

	query := `
	INSERT INTO documents (id, title, filename, page_count, indexed, owner_id, created_at, saved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		filename = excluded.filename,
		page_count = excluded.page_count,
		indexed = excluded.indexed,
		owner_id = excluded.owner_id,
		saved_at = excluded.saved_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.Filename, doc.PageCount, indexed, doc.OwnerID,
		doc.CreatedAt.UTC().Format(timeFormat),
		doc.SavedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}

	return nil
}

const documentColumns = `
	SELECT id, title, filename, page_count, indexed, owner_id, created_at, saved_at
	FROM documents`

// GetDocument retrieves document metadata by id. Returns ErrNotFound if
// absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*schema.Document, error) {
	row := s.conn.QueryRowContext(ctx, documentColumns+` WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments lists every document's metadata, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*schema.Document, error) {
	return s.listDocuments(ctx, documentColumns+` ORDER BY created_at DESC`)
}

// ListDocumentsByOwner lists a user's documents without touching the
// content table, so listings stay cheap regardless of blob sizes.
func (s *Store) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]*schema.Document, error) {
	return s.listDocuments(ctx, documentColumns+` WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

func (s *Store) listDocuments(ctx context.Context, query string, args ...any) ([]*schema.Document, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*schema.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document's metadata and, if present, its
// binary content.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM document_content WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document content %s: %w", id, err)
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// SaveDocumentContent stores a document's binary payload. Content is
// created lazily, only when the user asks for the document to be
// available offline.
func (s *Store) SaveDocumentContent(ctx context.Context, id string, data []byte) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}

	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO document_content (id, data) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data`, id, data)
	if err != nil {
		return fmt.Errorf("failed to save document content %s: %w", id, err)
	}
	return nil
}

// GetDocumentContent retrieves a document's binary payload. Returns
// ErrNotFound when the content was never downloaded, which is a normal
// state for documents whose metadata exists.
func (s *Store) GetDocumentContent(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM document_content WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document content %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document content %s: %w", id, err)
	}
	return data, nil
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

func scanDocument(row scanner) (*schema.Document, error) {
	var doc schema.Document
	var filename, ownerID, createdAt, savedAt sql.NullString
	var indexed int

	err := row.Scan(&doc.ID, &doc.Title, &filename, &doc.PageCount, &indexed, &ownerID, &createdAt, &savedAt)
	if err != nil {
		return nil, err
	}

	doc.Filename = filename.String
	doc.Indexed = indexed != 0
	doc.OwnerID = ownerID.String
	doc.CreatedAt = nullStringToTime(createdAt)
	doc.SavedAt = nullStringToTime(savedAt)

	return &doc, nil
}
