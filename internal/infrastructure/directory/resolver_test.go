package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuflow/backend/internal/domain/models"
)

func TestEnvResolver_Resolve(t *testing.T) {
	r := NewEnvResolver("REVIEWER=user-1; MANAGER=user-2 ;FINANCE/MANAGER=user-3;broken;=x;y=")
	ctx := context.Background()

	financeDoc := &models.Document{Department: "FINANCE"}
	hrDoc := &models.Document{Department: "HR"}

	user, err := r.Resolve(ctx, "reviewer", hrDoc)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", user)

	// Department-scoped entry wins over the bare role
	user, err = r.Resolve(ctx, "MANAGER", financeDoc)
	assert.NoError(t, err)
	assert.Equal(t, "user-3", user)

	user, err = r.Resolve(ctx, "MANAGER", hrDoc)
	assert.NoError(t, err)
	assert.Equal(t, "user-2", user)

	_, err = r.Resolve(ctx, "DIRECTOR", nil)
	assert.Error(t, err)
}
