package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dexradar/internal/domain"
)

// Archiver serializes terminal opportunity candidates to JSONL and uploads
// them ahead of their purge from the primary store. Deletion is intentionally
// left to the caller, so the archive is durable before anything is removed.
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver that writes through the given BlobWriter.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveCandidates uploads the candidates as one JSONL object keyed by the
// cutoff date and upload time, e.g.
//
//	archive/opportunities/2026-08-26/080102.jsonl
//
// It returns the object key. An empty slice uploads nothing.
func (a *Archiver) ArchiveCandidates(ctx context.Context, cands []domain.OpportunityCandidate, cutoff time.Time) (string, error) {
	if len(cands) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(cands)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive candidates marshal: %w", err)
	}

	path := fmt.Sprintf("archive/opportunities/%s/%s.jsonl",
		cutoff.UTC().Format("2006-01-02"), time.Now().UTC().Format("150405"))
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive candidates upload: %w", err)
	}
	return path, nil
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
