package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupcast/internal/accounts"
	"groupcast/internal/domain"
	"groupcast/internal/flow"
	"groupcast/internal/testutil"
)

func newGroupsService(client *testutil.StubClient, accRepo *testutil.MockAccountRepository, grpRepo *testutil.MockGroupRepository) (*Groups, *testutil.StubDialer) {
	dialer := &testutil.StubDialer{Client: client}
	svc := NewGroups(dialer, grpRepo, NewAccounts(accRepo), accounts.Options{
		MessageDelay: time.Millisecond,
		GroupDelay:   time.Millisecond,
	})
	return svc, dialer
}

var acc = domain.Account{ID: 1, Phone: "+14155550100", OwnerID: 42, Active: true}

func TestGroupsCreateRecordsAndTouches(t *testing.T) {
	client := &testutil.StubClient{
		CreateResults: []domain.GroupResult{{ChatID: 500, InviteLink: "https://t.me/+abc"}},
	}
	accRepo := new(testutil.MockAccountRepository)
	grpRepo := new(testutil.MockGroupRepository)
	accRepo.On("Touch", mock.Anything, int64(1)).Return(nil).Once()
	grpRepo.On("Record", mock.Anything, mock.MatchedBy(func(g domain.GroupRecord) bool {
		return g.ChatID == 500 && g.Title == "My Group" && g.AccountPhone == acc.Phone
	})).Return(nil).Once()

	svc, _ := newGroupsService(client, accRepo, grpRepo)
	res, err := svc.Create(context.Background(), acc, "My Group")

	require.NoError(t, err)
	assert.Equal(t, int64(500), res.ChatID)
	assert.Equal(t, 1, client.CloseCalls)
	accRepo.AssertExpectations(t)
	grpRepo.AssertExpectations(t)
}

func TestGroupsCreateLostLogRowIsNotFatal(t *testing.T) {
	client := &testutil.StubClient{}
	accRepo := new(testutil.MockAccountRepository)
	grpRepo := new(testutil.MockGroupRepository)
	accRepo.On("Touch", mock.Anything, int64(1)).Return(nil)
	grpRepo.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down"))

	svc, _ := newGroupsService(client, accRepo, grpRepo)
	_, err := svc.Create(context.Background(), acc, "My Group")

	assert.NoError(t, err)
}

func TestGroupsCreateSessionFailure(t *testing.T) {
	accRepo := new(testutil.MockAccountRepository)
	grpRepo := new(testutil.MockGroupRepository)
	svc, dialer := newGroupsService(&testutil.StubClient{}, accRepo, grpRepo)
	dialer.RestoreErr = accounts.ErrNotAuthorized

	_, err := svc.Create(context.Background(), acc, "My Group")

	var ee *flow.ExternalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "account session", ee.Op)
}

func TestGroupsCreateBatchNumbersTitlesAndTolerates(t *testing.T) {
	client := &testutil.StubClient{CreateErrs: []error{nil, errors.New("flood wait")}}
	accRepo := new(testutil.MockAccountRepository)
	grpRepo := new(testutil.MockGroupRepository)
	accRepo.On("Touch", mock.Anything, int64(1)).Return(nil).Once()
	grpRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	svc, _ := newGroupsService(client, accRepo, grpRepo)
	report, err := svc.CreateBatch(context.Background(), acc, "Promo", 3)

	require.NoError(t, err)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Total())
	assert.Equal(t, []string{"Promo 1", "Promo 2", "Promo 3"}, client.CreateNames)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "Promo 2", report.Failures[0].Ref)
}

func TestGroupsBroadcastReportsAggregate(t *testing.T) {
	client := &testutil.StubClient{
		Groups: []domain.GroupRef{
			{ID: 10, Title: "alpha"},
			{ID: 11, Title: "beta"},
			{ID: 12, Title: "gamma"},
		},
		FailSendTo: map[int64]error{11: errors.New("flood wait")},
	}
	accRepo := new(testutil.MockAccountRepository)
	grpRepo := new(testutil.MockGroupRepository)
	accRepo.On("Touch", mock.Anything, int64(1)).Return(nil).Once()

	svc, _ := newGroupsService(client, accRepo, grpRepo)
	report, err := svc.Broadcast(context.Background(), acc, "hello")

	require.NoError(t, err)
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []int64{10, 12}, client.SentTo)
	accRepo.AssertExpectations(t)
}

func TestGroupsBroadcastCancelledBetweenMessages(t *testing.T) {
	client := &testutil.StubClient{
		Groups: []domain.GroupRef{{ID: 10, Title: "a"}, {ID: 11, Title: "b"}},
	}
	accRepo := new(testutil.MockAccountRepository)
	grpRepo := new(testutil.MockGroupRepository)

	svc, _ := newGroupsService(client, accRepo, grpRepo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Broadcast(ctx, acc, "hello")
	assert.ErrorIs(t, err, context.Canceled)
}
