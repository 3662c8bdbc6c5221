package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvlm/internal/domain"
)

func TestAccountResolveProvisionsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAccountService(f.users, 10, 10, quiet)

	u, err := svc.Resolve(ctx, "3f1c1f5e-0000-4000-8000-000000000001", "New@Example.com")
	require.NoError(t, err)
	assert.Equal(t, 10, u.PDFCredits)
	assert.Equal(t, 10, u.TextCredits)
	assert.Equal(t, "new@example.com", u.Email)

	_, err = f.users.DecrementCredit(ctx, u.ID, domain.ResourcePDF)
	require.NoError(t, err)

	again, err := svc.Resolve(ctx, u.ID, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, 9, again.PDFCredits, "existing users are read, never reset")

	_, err = svc.Resolve(ctx, "", "")
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestAccountResolveWithoutEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAccountService(f.users, 1, 2, quiet)

	a, err := svc.Resolve(ctx, "user-a", "")
	require.NoError(t, err)
	b, err := svc.Resolve(ctx, "user-b", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Email, b.Email)
}

func TestAccountProvision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAccountService(f.users, 10, 10, quiet)

	u, created, err := svc.Provision(ctx, "ops@example.com", "Ops", -1, 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 10, u.PDFCredits)
	assert.Equal(t, 3, u.TextCredits)

	u2, created, err := svc.Provision(ctx, "ops@example.com", "", 5, -1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, u2.ID)
	assert.Equal(t, 5, u2.PDFCredits)
	assert.Equal(t, 3, u2.TextCredits)

	u3, created, err := svc.Provision(ctx, "ops@example.com", "", -1, -1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 5, u3.PDFCredits)
}
