package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mememarket/exchange/internal/domain"
)

// TradeLog is the read side of the archiver: everything appended to the
// trade log from a given offset onward.
type TradeLog interface {
	TradeLogSince(offset int) []domain.Trade
}

// Uploader is the write side, satisfied by *Client through Put.
type Uploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver periodically uploads the new tail of the trade log as JSONL
// objects. It keeps a cursor of how many trades it has shipped; the
// in-memory log is append-only, so the cursor alone identifies the tail.
type Archiver struct {
	log      TradeLog
	uploader Uploader
	interval time.Duration
	logger   *slog.Logger

	cursor int
}

// NewArchiver creates an Archiver shipping the trade log every interval.
func NewArchiver(log TradeLog, uploader Uploader, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Archiver{
		log:      log,
		uploader: uploader,
		interval: interval,
		logger:   logger.With(slog.String("component", "trade_archiver")),
	}
}

// Run ships new trades on every tick until ctx is cancelled, then makes a
// final flush so shutdown loses nothing.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

// flush uploads all trades past the cursor as one JSONL object. The cursor
// only advances after a successful upload, so failed batches are retried on
// the next tick.
func (a *Archiver) flush(ctx context.Context) {
	trades := a.log.TradeLogSince(a.cursor)
	if len(trades) == 0 {
		return
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		a.logger.ErrorContext(ctx, "marshal trade batch failed", slog.String("error", err.Error()))
		return
	}

	path := archivePath(time.Now().UTC())
	if err := a.uploader.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		a.logger.WarnContext(ctx, "trade archive upload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	a.cursor += len(trades)
	a.logger.InfoContext(ctx, "trade batch archived",
		slog.String("path", path),
		slog.Int("trades", len(trades)),
	)
}

// archivePath builds the object key for one batch, partitioned by day:
//
//	archive/trades/2026-08-30/153000.jsonl
func archivePath(ts time.Time) string {
	return fmt.Sprintf("archive/trades/%s/%s.jsonl", ts.Format("2006-01-02"), ts.Format("150405"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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

// Put uploads data as a single S3 PutObject request.
func (c *Client) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	}

	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}
