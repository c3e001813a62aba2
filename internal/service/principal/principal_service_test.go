package principal

import (
	"context"
	"testing"
	"time"

	domain "meterd-service/internal/domain/access"
	xerrors "meterd-service/internal/pkg/errors"
	"meterd-service/internal/service/access"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakePrincipalStore struct {
	byID   map[int64]*domain.Principal
	nextID int64
}

func newFakePrincipalStore(seed ...*domain.Principal) *fakePrincipalStore {
	f := &fakePrincipalStore{byID: make(map[int64]*domain.Principal), nextID: 100}
	for _, p := range seed {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakePrincipalStore) FindByID(_ context.Context, id int64) (*domain.Principal, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return p, nil
}

func (f *fakePrincipalStore) FindByEmail(_ context.Context, email string) (*domain.Principal, error) {
	for _, p := range f.byID {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakePrincipalStore) Create(_ context.Context, p *domain.Principal, _ time.Time) error {
	f.nextID++
	p.ID = f.nextID
	f.byID[p.ID] = p
	return nil
}

func (f *fakePrincipalStore) UpdateRole(_ context.Context, id int64, role domain.Role) error {
	f.byID[id].Role = role
	return nil
}

func (f *fakePrincipalStore) UpdatePermissions(_ context.Context, id int64, permissions []string) error {
	f.byID[id].ExplicitPermissions = permissions
	return nil
}

func (f *fakePrincipalStore) Deactivate(_ context.Context, id int64) error {
	f.byID[id].IsActive = false
	return nil
}

func (f *fakePrincipalStore) List(_ context.Context) ([]domain.Principal, error) {
	out := make([]domain.Principal, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, nil
}

func testPrincipal(id int64, role domain.Role) *domain.Principal {
	return &domain.Principal{ID: id, Role: role, IsActive: true}
}

func newTestService(store PrincipalStore) *Service {
	authority := access.NewAuthority(access.Config{}, zap.NewNop())
	return NewService(store, authority, nil, zap.NewNop())
}

func TestCreatePrincipal(t *testing.T) {
	ctx := context.Background()
	owner := testPrincipal(1, domain.RoleOwner)
	admin := testPrincipal(2, domain.RoleAdmin)
	support := testPrincipal(3, domain.RoleSupport)

	t.Run("admin creates a support principal", func(t *testing.T) {
		store := newFakePrincipalStore(owner, admin)
		s := newTestService(store)

		p, err := s.Create(ctx, admin, &domain.CreatePrincipalRequest{
			FullName: "Sam Doe",
			Email:    "Sam@Example.com",
			Password: "s3cret-pass",
			Role:     domain.RoleSupport,
		})
		require.NoError(t, err)

		assert.Equal(t, "sam@example.com", p.Email, "email is normalized")
		assert.True(t, p.IsActive)
		require.NotNil(t, p.CreatedBy)
		assert.Equal(t, admin.ID, *p.CreatedBy)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("s3cret-pass")))
	})

	t.Run("only an owner can mint an owner", func(t *testing.T) {
		store := newFakePrincipalStore(owner, admin)
		s := newTestService(store)

		_, err := s.Create(ctx, admin, &domain.CreatePrincipalRequest{
			FullName: "Eve", Email: "eve@example.com", Password: "pw123456", Role: domain.RoleOwner,
		})
		assert.ErrorIs(t, err, xerrors.ErrForbidden)

		_, err = s.Create(ctx, owner, &domain.CreatePrincipalRequest{
			FullName: "Eve", Email: "eve@example.com", Password: "pw123456", Role: domain.RoleOwner,
		})
		assert.NoError(t, err)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		existing := testPrincipal(5, domain.RoleSupport)
		existing.Email = "dup@example.com"
		store := newFakePrincipalStore(owner, existing)
		s := newTestService(store)

		_, err := s.Create(ctx, owner, &domain.CreatePrincipalRequest{
			FullName: "Dup", Email: "DUP@example.com", Password: "pw123456", Role: domain.RoleSupport,
		})
		assert.ErrorIs(t, err, xerrors.ErrConflict)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		store := newFakePrincipalStore(owner)
		s := newTestService(store)

		_, err := s.Create(ctx, owner, &domain.CreatePrincipalRequest{
			FullName: "X", Email: "x@example.com", Password: "pw123456", Role: domain.Role("superuser"),
		})
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("support cannot create principals", func(t *testing.T) {
		store := newFakePrincipalStore(owner, support)
		s := newTestService(store)

		_, err := s.Create(ctx, support, &domain.CreatePrincipalRequest{
			FullName: "X", Email: "x@example.com", Password: "pw123456", Role: domain.RoleSupport,
		})
		assert.ErrorIs(t, err, xerrors.ErrForbidden)
	})
}

func TestChangeRole(t *testing.T) {
	ctx := context.Background()
	owner := testPrincipal(1, domain.RoleOwner)
	admin := testPrincipal(2, domain.RoleAdmin)
	support := testPrincipal(3, domain.RoleSupport)

	t.Run("admin changes a support role", func(t *testing.T) {
		store := newFakePrincipalStore(owner, admin, support)
		s := newTestService(store)

		p, err := s.ChangeRole(ctx, admin, support.ID, domain.RoleMarketing)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleMarketing, p.Role)
	})

	t.Run("non-owner cannot touch an owner", func(t *testing.T) {
		store := newFakePrincipalStore(owner, admin)
		s := newTestService(store)

		_, err := s.ChangeRole(ctx, admin, owner.ID, domain.RoleAdmin)
		assert.ErrorIs(t, err, xerrors.ErrForbidden)
	})

	t.Run("non-owner cannot elevate to owner", func(t *testing.T) {
		target := testPrincipal(3, domain.RoleSupport)
		store := newFakePrincipalStore(owner, admin, target)
		s := newTestService(store)

		_, err := s.ChangeRole(ctx, admin, target.ID, domain.RoleOwner)
		assert.ErrorIs(t, err, xerrors.ErrForbidden)
	})

	t.Run("unknown target", func(t *testing.T) {
		store := newFakePrincipalStore(owner, admin)
		s := newTestService(store)

		_, err := s.ChangeRole(ctx, admin, 404, domain.RoleSupport)
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
	})
}

func TestPermissionMutation(t *testing.T) {
	ctx := context.Background()
	admin := testPrincipal(2, domain.RoleAdmin)

	t.Run("grant is idempotent", func(t *testing.T) {
		target := testPrincipal(3, domain.RoleSupport)
		store := newFakePrincipalStore(admin, target)
		s := newTestService(store)

		p, err := s.GrantPermission(ctx, admin, target.ID, "billing:overages")
		require.NoError(t, err)
		assert.Equal(t, []string{"billing:overages"}, []string(p.ExplicitPermissions))

		p, err = s.GrantPermission(ctx, admin, target.ID, "billing:overages")
		require.NoError(t, err)
		assert.Len(t, p.ExplicitPermissions, 1)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		target := testPrincipal(3, domain.RoleSupport)
		target.ExplicitPermissions = []string{"billing:overages"}
		store := newFakePrincipalStore(admin, target)
		s := newTestService(store)

		p, err := s.RevokePermission(ctx, admin, target.ID, "billing:overages")
		require.NoError(t, err)
		assert.Empty(t, p.ExplicitPermissions)

		_, err = s.RevokePermission(ctx, admin, target.ID, "billing:overages")
		assert.NoError(t, err)
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	owner := testPrincipal(1, domain.RoleOwner)
	admin := testPrincipal(2, domain.RoleAdmin)
	target := testPrincipal(3, domain.RoleSupport)

	store := newFakePrincipalStore(owner, admin, target)
	s := newTestService(store)

	require.NoError(t, s.Deactivate(ctx, admin, target.ID))
	assert.False(t, store.byID[target.ID].IsActive)

	t.Run("owner is untouchable", func(t *testing.T) {
		err := s.Deactivate(ctx, admin, owner.ID)
		assert.ErrorIs(t, err, xerrors.ErrForbidden)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	admin := testPrincipal(2, domain.RoleAdmin)
	marketing := testPrincipal(4, domain.RoleMarketing)

	store := newFakePrincipalStore(admin, marketing)
	s := newTestService(store)

	infos, err := s.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	_, err = s.List(ctx, marketing)
	assert.ErrorIs(t, err, xerrors.ErrForbidden, "marketing holds no users permission")
}
