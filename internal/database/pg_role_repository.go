package database

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"

	"scene-server/internal/models"
	"scene-server/internal/service"
)

const (
	roleFields = `id, name, role_type, script_key, script_role_key, resource_folder, created_at`

	// Апсерт по (script_key, script_role_key): DO UPDATE нужен только
	// чтобы RETURNING отдал существующую строку.
	getOrCreateRoleQuery = `
		INSERT INTO roles (name, role_type, script_key, script_role_key, resource_folder)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (script_key, script_role_key)
		DO UPDATE SET script_key = EXCLUDED.script_key
		RETURNING ` + roleFields + `
	`
	listRolesByScriptQuery = `
		SELECT ` + roleFields + `
		FROM roles
		WHERE script_key = $1
		ORDER BY id ASC
	`
)

var _ service.RoleRepository = (*pgRoleRepository)(nil)

// pgRoleRepository - PostgreSQL-каталог ролей. Роль создаётся лениво
// при первом обращении по паре (сценарий, ключ роли).
type pgRoleRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgRoleRepository создаёт каталог ролей.
func NewPgRoleRepository(db DBTX, logger *zap.Logger) *pgRoleRepository {
	return &pgRoleRepository{
		db:     db,
		logger: logger.Named("PgRoleRepo"),
	}
}

// GetOrCreateRole возвращает роль сценария, создавая её при первом обращении.
func (r *pgRoleRepository) GetOrCreateRole(ctx context.Context, scriptKey, scriptRoleKey, name string) (models.Role, error) {
	if name == "" {
		name = scriptRoleKey
	}
	var role models.Role
	err := pgxscan.Get(ctx, r.db, &role, getOrCreateRoleQuery,
		name, models.RoleTypeNPC, scriptKey, scriptRoleKey, "")
	if err != nil {
		return models.Role{}, fmt.Errorf("роль %s/%s: %w", scriptKey, scriptRoleKey, err)
	}
	return role, nil
}

// ListByScript возвращает все роли сценария.
func (r *pgRoleRepository) ListByScript(ctx context.Context, scriptKey string) ([]models.Role, error) {
	var roles []models.Role
	if err := pgxscan.Select(ctx, r.db, &roles, listRolesByScriptQuery, scriptKey); err != nil {
		return nil, fmt.Errorf("роли сценария %s: %w", scriptKey, err)
	}
	return roles, nil
}
