package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
)

const (
	placeholderEmail = "user@example.com"
	placeholderName  = "App User"
)

// EnsureUser inserts a placeholder user row unless id already exists.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	sql := `
		MERGE ` + s.table("users") + ` t
		USING (SELECT @id AS id) s
		ON t.id = s.id
		WHEN NOT MATCHED THEN
		  INSERT (id, email, name, created_at)
		  VALUES (@id, @email, @name, CURRENT_TIMESTAMP())
	`
	params := []bigquery.QueryParameter{
		{Name: "id", Value: userID},
		{Name: "email", Value: placeholderEmail},
		{Name: "name", Value: placeholderName},
	}
	if _, err := runDML(ctx, s.client, sql, params); err != nil {
		return fmt.Errorf("EnsureUser: %s: %w", userID, err)
	}
	return nil
}

// EnsureDefaultCategories seeds the fixed category set for a user. Existing
// (user_id, name) pairs are left alone.
func (s *Store) EnsureDefaultCategories(ctx context.Context, userID string) error {
	sql := `
		MERGE ` + s.table("categories") + ` t
		USING (SELECT name FROM UNNEST(@names) AS name) s
		ON t.user_id = @user_id AND t.name = s.name
		WHEN NOT MATCHED THEN
		  INSERT (id, user_id, name, is_system, created_at)
		  VALUES (GENERATE_UUID(), @user_id, s.name, TRUE, CURRENT_TIMESTAMP())
	`
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "names", Value: domain.CategoryNames()},
	}
	if _, err := runDML(ctx, s.client, sql, params); err != nil {
		return fmt.Errorf("EnsureDefaultCategories: %s: %w", userID, err)
	}
	return nil
}
