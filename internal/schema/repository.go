// Package schema reads attribute definitions owned by the attribute
// management service. This side only ever reads them.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type attributeRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	DataType  string         `db:"data_type"`
	Required  bool           `db:"required"`
	Options   pq.StringArray `db:"options"`
	Unit      sql.NullString `db:"unit"`
	MaxLength sql.NullInt64  `db:"max_length"`
}

// Repository lists attribute definitions from PostgreSQL
type Repository struct {
	db        *sqlx.DB
	logger    *slog.Logger
	validator *validator.Validate
}

// NewRepository creates a new Repository instance
func NewRepository(db *sqlx.DB, logger *slog.Logger) *Repository {
	return &Repository{
		db:        db,
		logger:    logger,
		validator: validator.New(),
	}
}

// ListAttributeDefinitions returns every usable attribute definition
func (r *Repository) ListAttributeDefinitions(ctx context.Context) ([]domain.AttributeDefinition, error) {
	snapshot, err := r.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Definitions, nil
}

// LoadSnapshot reads all attribute definitions in one query. Rows that are
// not well formed are reported in Skipped instead of Definitions.
func (r *Repository) LoadSnapshot(ctx context.Context) (*domain.SchemaSnapshot, error) {
	query := `
		SELECT id, name, data_type, required, options, unit, max_length
		FROM attribute_definitions
		ORDER BY name ASC
	`

	var rows []attributeRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list attribute definitions: %w", err)
	}

	snapshot := &domain.SchemaSnapshot{
		Definitions: make([]domain.AttributeDefinition, 0, len(rows)),
	}
	for _, row := range rows {
		def, err := r.toDomain(row)
		if err != nil {
			r.logger.Warn("Skipping invalid attribute definition",
				slog.String("attribute_id", row.ID),
				slog.String("name", row.Name),
				slog.String("error", err.Error()),
			)
			snapshot.Skipped = append(snapshot.Skipped, domain.SkippedAttribute{
				ID:     row.ID,
				Name:   row.Name,
				Reason: err.Error(),
			})
			continue
		}
		snapshot.Definitions = append(snapshot.Definitions, def)
	}

	r.logger.Debug("Attribute definitions loaded",
		slog.Int("count", len(snapshot.Definitions)),
		slog.Int("skipped", len(snapshot.Skipped)),
	)

	return snapshot, nil
}

func (r *Repository) toDomain(row attributeRow) (domain.AttributeDefinition, error) {
	def := domain.AttributeDefinition{
		ID:       row.ID,
		Name:     row.Name,
		Required: row.Required,
		Options:  []string(row.Options),
		Unit:     row.Unit.String,
	}

	dataType, ok := domain.ParseDataType(row.DataType)
	if !ok {
		return def, fmt.Errorf("unknown data type %q", row.DataType)
	}
	def.DataType = dataType

	// the required_if tag accepts an empty non-nil slice
	if (dataType == domain.DataTypeSingleSelect || dataType == domain.DataTypeMultiSelect) && len(def.Options) == 0 {
		return def, fmt.Errorf("%s attribute has no options", dataType)
	}

	if row.MaxLength.Valid {
		maxLength := int(row.MaxLength.Int64)
		def.MaxLength = &maxLength
	}

	if err := r.validator.Struct(def); err != nil {
		return def, err
	}
	return def, nil
}
