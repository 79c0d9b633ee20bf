package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// The archiver only requires the query methods it actually calls, not the
// full store interfaces; the Postgres stores satisfy these implicitly.

// AuditArchiveStore provides read and prune access to old audit entries.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuctionArchiveStore provides read access to settled auctions.
type AuctionArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Auction, error)
}

// BlobWriter is the upload capability the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// archiveBatchLimit caps how many audit rows one archive pass reads.
const archiveBatchLimit = 50_000

// Archiver moves aged marketplace records out of the primary store: audit
// entries and settled auctions older than the cutoff are serialized to JSONL
// and uploaded, after which the audit rows are pruned. Settled auctions stay
// in the store because the engine still consults them to reject a repeat
// settlement of the same auction.
type Archiver struct {
	writer   BlobWriter
	audit    AuditArchiveStore
	auctions AuctionArchiveStore
}

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(writer BlobWriter, audit AuditArchiveStore, auctions AuctionArchiveStore) *Archiver {
	return &Archiver{
		writer:   writer,
		audit:    audit,
		auctions: auctions,
	}
}

// ArchiveAuditLog uploads all audit entries older than the cutoff to
// archive/audit/YYYY-MM.jsonl and deletes them from the store. It returns
// the number of archived entries.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	// Prune only after the upload succeeded.
	deleted, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: prune archived audit entries: %w", err)
	}
	return deleted, nil
}

// ArchiveSettledAuctions uploads auctions settled before the cutoff to
// archive/auctions/YYYY-MM.jsonl and returns the count. The rows are not
// deleted.
func (a *Archiver) ArchiveSettledAuctions(ctx context.Context, before time.Time) (int64, error) {
	auctions, err := a.auctions.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions query: %w", err)
	}
	if len(auctions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(auctions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions marshal: %w", err)
	}

	path := archivePath("auctions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions upload: %w", err)
	}
	return int64(len(auctions)), nil
}

// archivePath builds archive/{kind}/YYYY-MM.jsonl from the cutoff month.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// marshalJSONL serializes a slice as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
