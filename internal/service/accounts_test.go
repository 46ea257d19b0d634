package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupcast/internal/domain"
	"groupcast/internal/flow"
	"groupcast/internal/repository"
	"groupcast/internal/testutil"
)

func TestAccountsCheckUnique(t *testing.T) {
	tests := []struct {
		name      string
		existing  domain.Account
		repoErr   error
		ownerID   int64
		wantOwned bool
		wantNil   bool
		wantExt   bool
	}{
		{
			name:    "phone free",
			repoErr: repository.ErrNotFound,
			ownerID: 42,
			wantNil: true,
		},
		{
			name:      "duplicate same owner",
			existing:  domain.Account{ID: 1, Phone: "+1", OwnerID: 42},
			ownerID:   42,
			wantOwned: true,
		},
		{
			name:     "duplicate other owner",
			existing: domain.Account{ID: 1, Phone: "+1", OwnerID: 7},
			ownerID:  42,
		},
		{
			name:    "lookup failure",
			repoErr: errors.New("db down"),
			ownerID: 42,
			wantExt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(testutil.MockAccountRepository)
			repo.On("ByPhone", mock.Anything, "+1").Return(tt.existing, tt.repoErr)
			svc := NewAccounts(repo)

			err := svc.CheckUnique(context.Background(), "+1", tt.ownerID)

			switch {
			case tt.wantNil:
				assert.NoError(t, err)
			case tt.wantExt:
				var ee *flow.ExternalError
				assert.ErrorAs(t, err, &ee)
			default:
				var ue *flow.UniquenessError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, tt.wantOwned, ue.Owned)
			}
		})
	}
}

func TestAccountsCreateRechecksUniqueness(t *testing.T) {
	repo := new(testutil.MockAccountRepository)
	repo.On("ByPhone", mock.Anything, "+1").
		Return(domain.Account{ID: 9, Phone: "+1", OwnerID: 7}, nil)
	svc := NewAccounts(repo)

	_, err := svc.Create(context.Background(), domain.Account{Phone: "+1", OwnerID: 42})

	var ue *flow.UniquenessError
	require.ErrorAs(t, err, &ue)
	repo.AssertNumberOfCalls(t, "Create", 0)
}

func TestAccountsCreateMarksActive(t *testing.T) {
	repo := new(testutil.MockAccountRepository)
	repo.On("ByPhone", mock.Anything, "+1").Return(domain.Account{}, repository.ErrNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(acc domain.Account) bool {
		return acc.Active
	})).Return(domain.Account{ID: 3, Phone: "+1", Active: true}, nil)
	svc := NewAccounts(repo)

	created, err := svc.Create(context.Background(), domain.Account{Phone: "+1", OwnerID: 42})

	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)
}

func TestAccountsTouchSwallowsErrors(t *testing.T) {
	repo := new(testutil.MockAccountRepository)
	repo.On("Touch", mock.Anything, int64(3)).Return(errors.New("db down"))
	svc := NewAccounts(repo)

	// Must not panic or propagate.
	svc.Touch(context.Background(), 3)
	repo.AssertCalled(t, "Touch", mock.Anything, int64(3))
}
