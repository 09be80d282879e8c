package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuflow/backend/internal/domain/models"
)

// EnvResolver resolves step assignee roles from a static mapping, loaded from
// the ROLE_ASSIGNEES environment variable at startup:
//
//	ROLE_ASSIGNEES="REVIEWER=user-1;MANAGER=user-2;FINANCE/MANAGER=user-3"
//
// A department-qualified entry (DEPARTMENT/ROLE) wins over the bare role.
// User and role administration proper lives in the directory systems the LDAP
// integration syncs against; this mapping is only the engine-side seam.
type EnvResolver struct {
	assignees map[string]string
}

// NewEnvResolver parses the mapping string. Malformed entries are skipped.
func NewEnvResolver(spec string) *EnvResolver {
	assignees := make(map[string]string)
	for _, entry := range strings.Split(spec, ";") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		role := strings.TrimSpace(parts[0])
		user := strings.TrimSpace(parts[1])
		if role == "" || user == "" {
			continue
		}
		assignees[strings.ToUpper(role)] = user
	}
	return &EnvResolver{assignees: assignees}
}

// Resolve maps a role to a user for the given document, preferring a
// department-scoped entry when the document carries a department.
func (r *EnvResolver) Resolve(_ context.Context, role string, doc *models.Document) (string, error) {
	role = strings.ToUpper(role)
	if doc != nil && doc.Department != "" {
		if user, ok := r.assignees[strings.ToUpper(doc.Department)+"/"+role]; ok {
			return user, nil
		}
	}
	if user, ok := r.assignees[role]; ok {
		return user, nil
	}
	return "", fmt.Errorf("no assignee configured for role %s", role)
}
