package db

import "context"

// MessageTemplate is a reusable message body keyed by name and type, used to
// keep recurring notifications (e.g. consensus round opened) consistent.
type MessageTemplate struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	MessageType   string `db:"message_type" json:"message_type"`
	BodyTemplate  string `db:"body_template" json:"body_template"`
}

// UpsertMessageTemplate inserts or replaces a template by id.
func (db *DB) UpsertMessageTemplate(ctx context.Context, t *MessageTemplate) error {
	query := `
		INSERT INTO message_templates (id, name, message_type, body_template)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			message_type = EXCLUDED.message_type,
			body_template = EXCLUDED.body_template,
			updated_at = NOW()
	`
	_, err := db.execPool(ctx, query, t.ID, t.Name, t.MessageType, t.BodyTemplate)
	return err
}

// GetMessageTemplate retrieves a template by name.
func (db *DB) GetMessageTemplate(ctx context.Context, name string) (*MessageTemplate, error) {
	query := `
		SELECT id, name, message_type, body_template
		FROM message_templates
		WHERE name = $1
	`
	var t MessageTemplate
	err := db.queryRowPool(ctx, query, name).Scan(&t.ID, &t.Name, &t.MessageType, &t.BodyTemplate)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListMessageTemplates returns every known template name.
func (db *DB) ListMessageTemplates(ctx context.Context) ([]string, error) {
	rows, err := db.queryPool(ctx, `SELECT name FROM message_templates ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
