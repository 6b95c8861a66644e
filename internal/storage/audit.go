package storage

import (
	"encoding/json"

	"taskpro/internal/models"
)

// Audit records one mutation in the audit trail. A zero userID is
// stored as NULL (API-key and system actions).
func (s *PostgresStorage) Audit(userID int64, action, entity string, entityID int64, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return err
	}

	_, err = s.DB.Exec(
		"INSERT INTO audit_log (user_id, action, entity, entity_id, detail) VALUES ($1, $2, $3, $4, $5)",
		nullID(userID), action, entity, nullID(entityID), detailJSON)
	return err
}

// ListAudit returns one page of audit entries, newest first.
func (s *PostgresStorage) ListAudit(page, perPage int) ([]models.AuditEntry, error) {
	f := models.TaskFilter{Page: page, PerPage: perPage}
	f.Clamp()

	rows, err := s.DB.Query(`
        SELECT id, user_id, action, entity, entity_id, detail, created_at
        FROM audit_log
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`, f.PerPage, f.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var userID, entityID *int64
		var detail []byte
		if err := rows.Scan(&e.ID, &userID, &e.Action, &e.Entity, &entityID, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = userID
		e.EntityID = entityID
		e.Detail = detail
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeAudit deletes audit entries older than the retention window and
// returns the number of rows removed. Zero days disables the purge.
func (s *PostgresStorage) PurgeAudit(olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	result, err := s.DB.Exec(
		"DELETE FROM audit_log WHERE created_at < now() - $1 * interval '1 day'",
		olderThanDays)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
