package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

const uniqueViolation = "23505"

//go:embed schema.sql
var schemaSQL string

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var articleColumns = []string{
	"id", "owner_id", "title", "link", "snippet", "source_name", "source_url",
	"published_at", "source_kind", "full_content", "url_decoded", "decode_failed",
	"ai_processed", "summary", "sentiment", "categories", "ai_error", "ai_processed_at",
	"matched_topics", "created_at", "updated_at",
}

// PostgresRepository persists articles into Postgres.
type PostgresRepository struct {
	db Querier
	sb sq.StatementBuilderType
}

var _ ports.ArticleStore = (*PostgresRepository)(nil)

// NewPostgresRepository wires a pgx pool (or anything shaped like one).
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate applies the embedded schema; every statement is idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InsertArticle inserts a new row; a (owner_id, link) conflict is reported as false.
func (r *PostgresRepository) InsertArticle(ctx context.Context, article domain.Article) (bool, error) {
	if err := requireOwner(article.OwnerID); err != nil {
		return false, err
	}

	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	topics := article.MatchedTopics
	if topics == nil {
		topics = []string{}
	}

	query, args, err := r.sb.Insert("articles").
		Columns("id", "owner_id", "title", "link", "snippet", "source_name", "source_url",
			"published_at", "source_kind", "full_content", "matched_topics").
		Values(article.ID, article.OwnerID, article.Title, article.Link, article.Snippet,
			article.SourceName, article.SourceURL, article.PublishedAt, string(article.SourceKind),
			article.FullContent, topics).
		Suffix("ON CONFLICT (owner_id, link) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDecodeEligible returns all url_decoded = false rows in a stable order.
func (r *PostgresRepository) ListDecodeEligible(ctx context.Context, ownerID string) ([]domain.Article, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	return r.selectArticles(ctx, r.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"owner_id": ownerID, "url_decoded": false}).
		OrderBy("created_at", "id"))
}

// ListAnalyzeEligible returns at most limit analyze-eligible rows.
func (r *PostgresRepository) ListAnalyzeEligible(ctx context.Context, ownerID string, limit int) ([]domain.Article, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrValidation)
	}

	return r.selectArticles(ctx, r.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{
			"owner_id":      ownerID,
			"url_decoded":   true,
			"decode_failed": false,
			"ai_processed":  false,
		}).
		OrderBy("created_at", "id").
		Limit(uint64(limit)))
}

// UpdateDecodeResult writes the decode outcome in a single statement.
func (r *PostgresRepository) UpdateDecodeResult(ctx context.Context, ownerID, articleID string, update domain.DecodeUpdate) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	b := r.sb.Update("articles").
		Set("url_decoded", update.URLDecoded).
		Set("decode_failed", update.DecodeFailed)
	if update.Link != "" {
		b = b.Set("link", update.Link)
	}
	query, args, err := b.
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": articleID, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build decode update: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateLink
		}
		return fmt.Errorf("update decode result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateAnalysisResult writes the analyze outcome and marks the row processed.
func (r *PostgresRepository) UpdateAnalysisResult(ctx context.Context, ownerID, articleID string, update domain.AnalysisUpdate) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	var sentiment *string
	if update.Sentiment != nil {
		s := string(*update.Sentiment)
		sentiment = &s
	}

	query, args, err := r.sb.Update("articles").
		Set("ai_processed", true).
		Set("summary", update.Summary).
		Set("sentiment", sentiment).
		Set("categories", update.Categories).
		Set("ai_error", update.AIError).
		Set("ai_processed_at", update.ProcessedAt).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": articleID, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build analysis update: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update analysis result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountPending evaluates both eligibility predicates in one scan.
func (r *PostgresRepository) CountPending(ctx context.Context, ownerID string) (domain.PendingCounts, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.PendingCounts{}, err
	}

	query, args, err := r.sb.Select(
		"COUNT(*) FILTER (WHERE NOT url_decoded)",
		"COUNT(*) FILTER (WHERE url_decoded AND NOT decode_failed AND NOT ai_processed)",
	).
		From("articles").
		Where(sq.Eq{"owner_id": ownerID}).
		ToSql()
	if err != nil {
		return domain.PendingCounts{}, fmt.Errorf("build pending count: %w", err)
	}

	var counts domain.PendingCounts
	if err := r.db.QueryRow(ctx, query, args...).Scan(&counts.DecodePending, &counts.AnalyzePending); err != nil {
		return domain.PendingCounts{}, fmt.Errorf("count pending: %w", err)
	}
	return counts, nil
}

// ResetFailedAnalyses makes failed analyses eligible again.
func (r *PostgresRepository) ResetFailedAnalyses(ctx context.Context, ownerID string) (int, error) {
	if err := requireOwner(ownerID); err != nil {
		return 0, err
	}

	query, args, err := r.sb.Update("articles").
		Set("ai_processed", false).
		Set("ai_error", nil).
		Set("ai_processed_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"owner_id": ownerID, "ai_processed": true}).
		Where(sq.NotEq{"ai_error": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reset: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset failed analyses: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListEnabledTopics reads the owner's topic settings.
func (r *PostgresRepository) ListEnabledTopics(ctx context.Context, ownerID string) ([]domain.Topic, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	query, args, err := r.sb.Select("name", "keywords").
		From("topics").
		Where(sq.Eq{"owner_id": ownerID, "enabled": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build topics query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		t := domain.Topic{Enabled: true}
		if err := rows.Scan(&t.Name, &t.Keywords); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return topics, nil
}

func (r *PostgresRepository) selectArticles(ctx context.Context, b sq.SelectBuilder) ([]domain.Article, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return articles, nil
}

func scanArticle(row pgx.Row) (domain.Article, error) {
	var (
		a           domain.Article
		kind        string
		sentiment   *string
		processedAt *time.Time
	)

	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Title, &a.Link, &a.Snippet, &a.SourceName, &a.SourceURL,
		&a.PublishedAt, &kind, &a.FullContent, &a.URLDecoded, &a.DecodeFailed,
		&a.AIProcessed, &a.Summary, &sentiment, &a.Categories, &a.AIError, &processedAt,
		&a.MatchedTopics, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Article{}, fmt.Errorf("scan article: %w", err)
	}

	a.SourceKind = domain.SourceKind(kind)
	if sentiment != nil {
		s := domain.Sentiment(*sentiment)
		a.Sentiment = &s
	}
	a.AIProcessedAt = processedAt
	return a, nil
}
