package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/database"
	"github.com/sanctio/screening-engine/pkg/matching"
	"github.com/sanctio/screening-engine/pkg/models"
)

// recordColumns is the column list for bulk upserts. Sub-batch sizing is
// derived from it: 8 records x 12 columns keeps each statement under the
// store's parameter ceiling.
const recordColumns = 12

// BatchResult reports the outcome of one batch upsert. Errors are
// per-record: a failed record never aborts the rest of the batch.
type BatchResult struct {
	Inserted int
	Errors   []string
}

// RecordRepository provides data access for watchlist records and keeps the
// derived identifier index in step with every write.
type RecordRepository interface {
	// UpsertBatch writes records in fixed-size sub-batches. If a sub-batch
	// bulk insert fails it falls back to per-record upsert for that
	// sub-batch only, collecting individual errors.
	UpsertBatch(ctx context.Context, dataset string, records []*models.WatchlistRecord) (*BatchResult, error)

	// GetByKeys batch-fetches full records for the given (dataset, id) keys.
	GetByKeys(ctx context.Context, keys []models.IdentifierHit) ([]*models.WatchlistRecord, error)

	// ListPage returns up to limit records of a dataset ordered by primary
	// key, starting at offset. Used by the vectorization indexer and the
	// cache-fronted list endpoint.
	ListPage(ctx context.Context, dataset string, offset, limit int) ([]*models.WatchlistRecord, error)

	// CountByDataset returns the number of records in a dataset.
	CountByDataset(ctx context.Context, dataset string) (int, error)

	// TruncateDataset deletes every record of a dataset and returns the
	// number of rows removed. Identifier-index rows cascade.
	TruncateDataset(ctx context.Context, dataset string) (int64, error)
}

// querier is the slice of the pgx pool surface the repository uses. It is
// satisfied by *database.DB and lets tests stand in a fake pool.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type recordRepository struct {
	db           querier
	subBatchSize int
	logger       *zap.Logger
}

// NewRecordRepository creates a new RecordRepository. subBatchSize bounds
// the records per bulk INSERT; values below 1 fall back to 8.
func NewRecordRepository(db *database.DB, subBatchSize int, logger *zap.Logger) RecordRepository {
	if subBatchSize < 1 {
		subBatchSize = 8
	}
	return &recordRepository{
		db:           db,
		subBatchSize: subBatchSize,
		logger:       logger.Named("record-repo"),
	}
}

var _ RecordRepository = (*recordRepository)(nil)

func (r *recordRepository) UpsertBatch(ctx context.Context, dataset string, records []*models.WatchlistRecord) (*BatchResult, error) {
	result := &BatchResult{}

	for start := 0; start < len(records); start += r.subBatchSize {
		end := start + r.subBatchSize
		if end > len(records) {
			end = len(records)
		}
		sub := records[start:end]

		if err := r.upsertSubBatch(ctx, dataset, sub); err == nil {
			result.Inserted += len(sub)
			continue
		} else {
			r.logger.Warn("sub-batch insert failed, falling back to per-record upsert",
				zap.String("dataset", dataset),
				zap.Int("sub_batch_size", len(sub)),
				zap.Error(err))
		}

		// Partial-failure isolation: retry each record of the failed
		// sub-batch on its own so one bad row cannot sink its neighbors.
		for _, rec := range sub {
			if err := r.upsertOne(ctx, dataset, rec); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("record %s: %v", rec.ID, err))
				continue
			}
			result.Inserted++
		}
	}

	return result, nil
}

func (r *recordRepository) upsertSubBatch(ctx context.Context, dataset string, records []*models.WatchlistRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*recordColumns)

	for i, rec := range records {
		aliases, addresses, identifiers, err := marshalRecordJSON(rec)
		if err != nil {
			return err
		}
		base := i * recordColumns
		ph := make([]string, recordColumns)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			dataset, rec.ID, rec.PartyType, rec.PrimaryName,
			aliases, rec.BirthDate, rec.BirthPlace, addresses,
			identifiers, rec.Remarks, rec.SourceList, now,
		)
	}

	query := `
		INSERT INTO watchlist_records (
			dataset, id, party_type, primary_name, aliases, birth_date,
			birth_place, addresses, identifiers, remarks, source_list, updated_at
		) VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (dataset, id) DO UPDATE SET
			party_type = EXCLUDED.party_type,
			primary_name = EXCLUDED.primary_name,
			aliases = EXCLUDED.aliases,
			birth_date = EXCLUDED.birth_date,
			birth_place = EXCLUDED.birth_place,
			addresses = EXCLUDED.addresses,
			identifiers = EXCLUDED.identifiers,
			remarks = EXCLUDED.remarks,
			source_list = EXCLUDED.source_list,
			updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to bulk insert records: %w", err)
	}

	if err := rebuildIdentifierIndex(ctx, tx, dataset, records); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit sub-batch: %w", err)
	}
	return nil
}

func (r *recordRepository) upsertOne(ctx context.Context, dataset string, rec *models.WatchlistRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	aliases, addresses, identifiers, err := marshalRecordJSON(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO watchlist_records (
			dataset, id, party_type, primary_name, aliases, birth_date,
			birth_place, addresses, identifiers, remarks, source_list, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (dataset, id) DO UPDATE SET
			party_type = EXCLUDED.party_type,
			primary_name = EXCLUDED.primary_name,
			aliases = EXCLUDED.aliases,
			birth_date = EXCLUDED.birth_date,
			birth_place = EXCLUDED.birth_place,
			addresses = EXCLUDED.addresses,
			identifiers = EXCLUDED.identifiers,
			remarks = EXCLUDED.remarks,
			source_list = EXCLUDED.source_list,
			updated_at = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, query,
		dataset, rec.ID, rec.PartyType, rec.PrimaryName,
		aliases, rec.BirthDate, rec.BirthPlace, addresses,
		identifiers, rec.Remarks, rec.SourceList, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	if err := rebuildIdentifierIndex(ctx, tx, dataset, []*models.WatchlistRecord{rec}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// rebuildIdentifierIndex replaces the derived identifier rows for the given
// records inside the caller's transaction.
func rebuildIdentifierIndex(ctx context.Context, tx pgx.Tx, dataset string, records []*models.WatchlistRecord) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM identifier_index WHERE dataset = $1 AND record_id = ANY($2)`,
		dataset, ids,
	); err != nil {
		return fmt.Errorf("failed to clear identifier index: %w", err)
	}

	for _, rec := range records {
		for _, ident := range rec.Identifiers {
			normalized := matching.NormalizeIdentifier(ident.Number)
			if normalized == "" {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO identifier_index (dataset, record_id, identifier_normalized)
				 VALUES ($1, $2, $3)
				 ON CONFLICT DO NOTHING`,
				dataset, rec.ID, normalized,
			); err != nil {
				return fmt.Errorf("failed to index identifier for record %s: %w", rec.ID, err)
			}
		}
	}
	return nil
}

func (r *recordRepository) GetByKeys(ctx context.Context, keys []models.IdentifierHit) ([]*models.WatchlistRecord, error) {
	if len(keys) == 0 {
		return []*models.WatchlistRecord{}, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]any, 0, len(keys)*2)
	for i, key := range keys {
		placeholders[i] = fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2)
		args = append(args, key.Dataset, key.RecordID)
	}

	query := `
		SELECT dataset, id, party_type, primary_name, aliases, birth_date,
		       birth_place, addresses, identifiers, remarks, source_list,
		       created_at, updated_at
		FROM watchlist_records
		WHERE (dataset, id) IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by keys: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *recordRepository) ListPage(ctx context.Context, dataset string, offset, limit int) ([]*models.WatchlistRecord, error) {
	query := `
		SELECT dataset, id, party_type, primary_name, aliases, birth_date,
		       birth_place, addresses, identifiers, remarks, source_list,
		       created_at, updated_at
		FROM watchlist_records
		WHERE dataset = $1
		ORDER BY id
		OFFSET $2 LIMIT $3`

	rows, err := r.db.Query(ctx, query, dataset, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *recordRepository) CountByDataset(ctx context.Context, dataset string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM watchlist_records WHERE dataset = $1`, dataset,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (r *recordRepository) TruncateDataset(ctx context.Context, dataset string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM watchlist_records WHERE dataset = $1`, dataset)
	if err != nil {
		return 0, fmt.Errorf("failed to truncate dataset: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalRecordJSON(rec *models.WatchlistRecord) (aliases, addresses, identifiers []byte, err error) {
	if aliases, err = json.Marshal(emptyIfNil(rec.Aliases)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal aliases: %w", err)
	}
	if addresses, err = json.Marshal(emptyIfNil(rec.Addresses)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal addresses: %w", err)
	}
	idents := rec.Identifiers
	if idents == nil {
		idents = []models.Identifier{}
	}
	if identifiers, err = json.Marshal(idents); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal identifiers: %w", err)
	}
	return aliases, addresses, identifiers, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanRecords(rows pgx.Rows) ([]*models.WatchlistRecord, error) {
	records := make([]*models.WatchlistRecord, 0)
	for rows.Next() {
		var (
			rec         models.WatchlistRecord
			aliases     []byte
			addresses   []byte
			identifiers []byte
		)
		if err := rows.Scan(
			&rec.Dataset, &rec.ID, &rec.PartyType, &rec.PrimaryName,
			&aliases, &rec.BirthDate, &rec.BirthPlace, &addresses,
			&identifiers, &rec.Remarks, &rec.SourceList,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal(aliases, &rec.Aliases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
		}
		if err := json.Unmarshal(addresses, &rec.Addresses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal addresses: %w", err)
		}
		if err := json.Unmarshal(identifiers, &rec.Identifiers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal identifiers: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}
