package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"saaspos/backend/internal/domain"
	"saaspos/backend/internal/store"
	"saaspos/backend/internal/xid"
)

const productColumns = `id, name, category, price, price_secondary, stock, has_stock, low_stock_threshold, description, metadata, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var (
		p        domain.Product
		priceSec sql.NullFloat64
		stock    sql.NullInt64
		desc     sql.NullString
		meta     []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &priceSec, &stock, &p.HasStock, &p.LowStockThreshold, &desc, &meta, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if priceSec.Valid {
		v := priceSec.Float64
		p.PriceSecondary = &v
	}
	if stock.Valid {
		v := int(stock.Int64)
		p.Stock = &v
	}
	p.Description = desc.String
	p.Metadata = parseMetadata(meta)
	p.OptionSchema = []domain.OptionGroup{}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products`
	args := []any{}
	if category != "" {
		q += ` WHERE category = $1`
		args = append(args, category)
	}
	q += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachOptionSchemas(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	list := []domain.Product{*p}
	if err := s.attachOptionSchemas(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE has_stock AND stock IS NOT NULL AND stock <= low_stock_threshold
		ORDER BY stock, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// groupSlot locates a group inside a product's schema by position. Slots are
// positional rather than element pointers because appending later groups can
// reallocate the schema's backing array.
type groupSlot struct {
	product *domain.Product
	idx     int
}

func attachGroup(index map[string]*domain.Product, slots map[string]groupSlot, productID string, g domain.OptionGroup) bool {
	p := index[productID]
	if p == nil {
		return false
	}
	p.OptionSchema = append(p.OptionSchema, g)
	slots[g.ID] = groupSlot{product: p, idx: len(p.OptionSchema) - 1}
	return true
}

func attachOptionValue(slots map[string]groupSlot, groupID string, v domain.OptionValue) {
	slot, ok := slots[groupID]
	if !ok {
		return
	}
	slot.product.OptionSchema[slot.idx].Options = append(slot.product.OptionSchema[slot.idx].Options, v)
}

// attachOptionSchemas batch-loads the option groups and values for the given
// products and composes them in place.
func (s *Store) attachOptionSchemas(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]*domain.Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = &products[i]
	}

	groupRows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, key, label, type, required
		FROM product_option_groups
		WHERE product_id = ANY($1)
		ORDER BY product_id, key`, ids)
	if err != nil {
		return err
	}
	defer groupRows.Close()

	groupIDs := []string{}
	slots := map[string]groupSlot{}
	for groupRows.Next() {
		var g domain.OptionGroup
		var productID string
		if err := groupRows.Scan(&g.ID, &productID, &g.Key, &g.Label, &g.Type, &g.Required); err != nil {
			return err
		}
		g.Options = []domain.OptionValue{}
		if attachGroup(index, slots, productID, g) {
			groupIDs = append(groupIDs, g.ID)
		}
	}
	if err := groupRows.Err(); err != nil {
		return err
	}
	if len(groupIDs) == 0 {
		return nil
	}

	valueRows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, label, value, value_type, text_value, number_value, bool_value, date_value, price_delta
		FROM product_option_values
		WHERE group_id = ANY($1)
		ORDER BY group_id, label, value`, groupIDs)
	if err != nil {
		return err
	}
	defer valueRows.Close()

	for valueRows.Next() {
		var (
			v       domain.OptionValue
			groupID string
			textVal sql.NullString
			numVal  sql.NullFloat64
			boolVal sql.NullBool
			dateVal sql.NullTime
		)
		if err := valueRows.Scan(&v.ID, &groupID, &v.Label, &v.Value, &v.ValueType, &textVal, &numVal, &boolVal, &dateVal, &v.PriceDelta); err != nil {
			return err
		}
		if textVal.Valid {
			t := textVal.String
			v.TextValue = &t
		}
		if numVal.Valid {
			n := numVal.Float64
			v.NumberValue = &n
		}
		if boolVal.Valid {
			b := boolVal.Bool
			v.BoolValue = &b
		}
		if dateVal.Valid {
			d := dateVal.Time.Format("2006-01-02")
			v.DateValue = &d
		}
		attachOptionValue(slots, groupID, v)
	}
	return valueRows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, price_secondary, stock, has_stock, low_stock_threshold, description, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		product.ID, product.Name, product.Category, product.Price, nullFloat(product.PriceSecondary),
		nullInt(product.Stock), product.HasStock, product.LowStockThreshold,
		nullIfEmpty(product.Description), jsonOrNull(product.Metadata), product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	if err := reconcileOptionSchema(ctx, tx, product.ID, product.OptionSchema); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Non-blocking parent lock. A concurrent holder makes this fail with
	// SQLSTATE 55P03, which classify marks transient for the retry loop.
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE NOWAIT`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}

	set := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, col+" = "+placeholder(len(args)))
	}
	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Category != nil {
		add("category", *req.Category)
	}
	if req.Price != nil {
		add("price", *req.Price)
	}
	if req.PriceSecondary != nil {
		add("price_secondary", *req.PriceSecondary)
	}
	if req.Stock != nil {
		add("stock", *req.Stock)
	}
	if req.HasStock != nil {
		add("has_stock", *req.HasStock)
	}
	if req.LowStockThreshold != nil {
		add("low_stock_threshold", *req.LowStockThreshold)
	}
	if req.Description != nil {
		add("description", nullIfEmpty(*req.Description))
	}
	if req.Metadata != nil {
		add("metadata", jsonOrNull(*req.Metadata))
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	q := `UPDATE products SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return nil, classify(err)
	}

	if req.OptionSchema != nil {
		if err := reconcileOptionSchema(ctx, tx, id, *req.OptionSchema); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return s.GetProduct(ctx, id)
}

// reconcileOptionSchema makes the stored option groups and values of a
// product match the desired schema without dropping untouched rows. Groups
// upsert on (product_id, key), values on (group_id, label, value); anything
// not in the desired set is pruned afterwards. Deleting a group cascades to
// its values.
func reconcileOptionSchema(ctx context.Context, tx *sql.Tx, productID string, schema []domain.OptionGroup) error {
	keepGroups := []string{}
	for _, g := range schema {
		var groupID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO product_option_groups (id, product_id, key, label, type, required)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (product_id, key)
			DO UPDATE SET label = EXCLUDED.label, type = EXCLUDED.type, required = EXCLUDED.required
			RETURNING id`,
			xid.New("grp"), productID, g.Key, g.Label, g.Type, g.Required).Scan(&groupID)
		if err != nil {
			return classify(err)
		}
		keepGroups = append(keepGroups, groupID)

		keepValues := []string{}
		for _, o := range g.Options {
			var valueID string
			err := tx.QueryRowContext(ctx, `
				INSERT INTO product_option_values (id, group_id, label, value, value_type, text_value, number_value, bool_value, date_value, price_delta)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (group_id, label, value)
				DO UPDATE SET value_type = EXCLUDED.value_type,
					text_value = EXCLUDED.text_value,
					number_value = EXCLUDED.number_value,
					bool_value = EXCLUDED.bool_value,
					date_value = EXCLUDED.date_value,
					price_delta = EXCLUDED.price_delta
				RETURNING id`,
				xid.New("opt"), groupID, o.Label, o.Value, o.ValueType,
				nullString(o.TextValue), nullFloat(o.NumberValue), nullBool(o.BoolValue), nullString(o.DateValue),
				o.PriceDelta).Scan(&valueID)
			if err != nil {
				return classify(err)
			}
			keepValues = append(keepValues, valueID)
		}

		var err2 error
		if len(keepValues) > 0 {
			_, err2 = tx.ExecContext(ctx, `DELETE FROM product_option_values WHERE group_id = $1 AND id != ALL($2)`, groupID, keepValues)
		} else {
			_, err2 = tx.ExecContext(ctx, `DELETE FROM product_option_values WHERE group_id = $1`, groupID)
		}
		if err2 != nil {
			return classify(err2)
		}
	}

	var err error
	if len(keepGroups) > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM product_option_groups WHERE product_id = $1 AND id != ALL($2)`, productID, keepGroups)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM product_option_groups WHERE product_id = $1`, productID)
	}
	return classify(err)
}

func (s *Store) DeleteProduct(ctx context.Context, id string, force bool) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE NOWAIT`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}

	if !force {
		var refs int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_items WHERE product_id = $1`, id).Scan(&refs)
		if err != nil {
			return classify(err)
		}
		if refs == 0 {
			err = tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM orders
				WHERE items @> jsonb_build_array(jsonb_build_object('productId', $1::text))`, id).Scan(&refs)
			if err != nil {
				return classify(err)
			}
		}
		if refs > 0 {
			return store.ErrReferenced
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM orders
			WHERE items @> jsonb_build_array(jsonb_build_object('productId', $1::text))`, id)
		if err != nil {
			return classify(err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM transaction_items WHERE product_id = $1`, id); err != nil {
			return classify(err)
		}
	}

	// Option groups and values go via ON DELETE CASCADE.
	if _, err = tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

func (s *Store) ListOrdersForProduct(ctx context.Context, productID string) ([]domain.ProductOrderRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_number, status, created_at, total
		FROM orders
		WHERE items @> jsonb_build_array(jsonb_build_object('productId', $1::text))
		ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []domain.ProductOrderRef{}
	for rows.Next() {
		var r domain.ProductOrderRef
		var table sql.NullString
		if err := rows.Scan(&r.ID, &table, &r.Status, &r.CreatedAt, &r.Total); err != nil {
			return nil, err
		}
		r.TableNumber = table.String
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
