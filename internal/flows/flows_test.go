package flows

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
	"groupcast/internal/repository"
	"groupcast/internal/service"
	"groupcast/internal/session"
	"groupcast/internal/testutil"
)

type promptRec struct {
	Text    string
	Options []string
}

type recPrompter struct {
	prompts []promptRec
}

func (p *recPrompter) Prompt(_ context.Context, text string, options []string) error {
	p.prompts = append(p.prompts, promptRec{Text: text, Options: options})
	return nil
}

func (p *recPrompter) last(t *testing.T) promptRec {
	t.Helper()
	require.NotEmpty(t, p.prompts)
	return p.prompts[len(p.prompts)-1]
}

type harness struct {
	engine   *flow.Engine
	store    *session.Store
	accRepo  *testutil.MockAccountRepository
	grpRepo  *testutil.MockGroupRepository
	dialer   *testutil.StubDialer
	client   *testutil.StubClient
	prompter *recPrompter
}

func newHarness() *harness {
	client := &testutil.StubClient{Session: "sess-dir"}
	dialer := &testutil.StubDialer{Client: client}
	accRepo := new(testutil.MockAccountRepository)
	grpRepo := new(testutil.MockGroupRepository)

	accSvc := service.NewAccounts(accRepo)
	grpSvc := service.NewGroups(dialer, grpRepo, accSvc, accounts.Options{
		MessageDelay: time.Millisecond,
		GroupDelay:   time.Millisecond,
	})

	store := session.NewStore()
	engine := flow.NewEngine(store)
	New(accSvc, grpSvc, dialer, 50).RegisterAll(engine)

	return &harness{
		engine:   engine,
		store:    store,
		accRepo:  accRepo,
		grpRepo:  grpRepo,
		dialer:   dialer,
		client:   client,
		prompter: &recPrompter{},
	}
}

var (
	alice = flow.Identity{ID: 42, Name: "alice"}
	bob   = flow.Identity{ID: 77, Name: "bob"}
	root  = flow.Identity{ID: 1, Name: "root", Privileged: true}
)

func (h *harness) text(t *testing.T, u flow.Identity, input string) {
	t.Helper()
	require.NoError(t, h.engine.HandleText(context.Background(), u, input, h.prompter))
}

func (h *harness) pick(t *testing.T, u flow.Identity, index int) {
	t.Helper()
	require.NoError(t, h.engine.HandleSelect(context.Background(), u, index, h.prompter))
}

func (h *harness) enter(t *testing.T, u flow.Identity, name string) {
	t.Helper()
	require.NoError(t, h.engine.Enter(context.Background(), u, name, h.prompter))
}

func TestOnboardingHappyPathCreatesExactlyOneAccount(t *testing.T) {
	h := newHarness()
	h.client.CodeHash = "hash-1"

	h.accRepo.On("ByPhone", mock.Anything, "+14155550100").
		Return(domain.Account{}, repository.ErrNotFound)
	h.accRepo.On("Create", mock.Anything, mock.MatchedBy(func(acc domain.Account) bool {
		return acc.Phone == "+14155550100" &&
			acc.APIID == 123456 &&
			acc.OwnerID == alice.ID &&
			acc.Active &&
			acc.SessionCredential() == "sess-dir"
	})).Return(domain.Account{ID: 1, Phone: "+14155550100", OwnerID: alice.ID}, nil).Once()

	h.enter(t, alice, Onboarding)
	h.text(t, alice, "123456")
	h.text(t, alice, "abcdef12345")
	h.text(t, alice, "+14155550100")

	// The send-code step ran on entry; the pending prompt asks for the code.
	assert.Contains(t, h.prompter.last(t).Text, "5-digit code")

	h.text(t, alice, "12345")

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Contains(t, h.prompter.last(t).Text, "onboarded")
	assert.Equal(t, "12345", h.client.UsedCode)
	assert.Equal(t, "hash-1", h.client.UsedHash)
	assert.Equal(t, 1, h.client.CloseCalls)
	h.accRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestOnboardingBranchesToPasswordOnSecondFactor(t *testing.T) {
	h := newHarness()
	h.client.NeedsPassword = true

	h.accRepo.On("ByPhone", mock.Anything, "+14155550100").
		Return(domain.Account{}, repository.ErrNotFound)
	h.accRepo.On("Create", mock.Anything, mock.Anything).
		Return(domain.Account{ID: 1, Phone: "+14155550100", OwnerID: alice.ID}, nil).Once()

	h.enter(t, alice, Onboarding)
	h.text(t, alice, "123456")
	h.text(t, alice, "abcdef12345")
	h.text(t, alice, "+14155550100")
	h.text(t, alice, "12345")

	// Branched, not completed: the session is still pending at the
	// password step and nothing is persisted yet.
	assert.True(t, h.store.InProgress(alice.ID))
	assert.Contains(t, h.prompter.last(t).Text, "password")
	h.accRepo.AssertNumberOfCalls(t, "Create", 0)

	h.client.NeedsPassword = false
	h.text(t, alice, "hunter2")

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Equal(t, "hunter2", h.client.UsedPass)
	h.accRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestOnboardingValidationRepromptsWithoutAdvancing(t *testing.T) {
	h := newHarness()

	h.enter(t, alice, Onboarding)

	h.text(t, alice, "not-a-number")
	assert.Equal(t, "api_id", h.store.Get(alice.ID).Step)
	assert.Contains(t, h.prompter.last(t).Text, "must be a number")

	h.text(t, alice, "123456")
	assert.Equal(t, "api_hash", h.store.Get(alice.ID).Step)

	h.text(t, alice, "short")
	assert.Equal(t, "api_hash", h.store.Get(alice.ID).Step)

	h.text(t, alice, "abcdef12345")
	assert.Equal(t, "phone", h.store.Get(alice.ID).Step)

	h.text(t, alice, "4155550100")
	assert.Equal(t, "phone", h.store.Get(alice.ID).Step)
	assert.Contains(t, h.prompter.last(t).Text, "international format")
}

func TestOnboardingDuplicatePhone(t *testing.T) {
	cases := []struct {
		name    string
		ownerID int64
		want    string
	}{
		{name: "already yours", ownerID: alice.ID, want: "already onboarded by you"},
		{name: "someone else's", ownerID: bob.ID, want: "another user"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.accRepo.On("ByPhone", mock.Anything, "+14155550100").
				Return(domain.Account{ID: 9, Phone: "+14155550100", OwnerID: tc.ownerID}, nil)

			h.enter(t, alice, Onboarding)
			h.text(t, alice, "123456")
			h.text(t, alice, "abcdef12345")
			h.text(t, alice, "+14155550100")

			assert.False(t, h.store.InProgress(alice.ID))
			assert.Contains(t, h.prompter.last(t).Text, tc.want)
			h.accRepo.AssertNumberOfCalls(t, "Create", 0)
			assert.Empty(t, h.dialer.DialedWith)
		})
	}
}

func TestOnboardingCancelClosesPendingSession(t *testing.T) {
	h := newHarness()
	h.accRepo.On("ByPhone", mock.Anything, "+14155550100").
		Return(domain.Account{}, repository.ErrNotFound)

	h.enter(t, alice, Onboarding)
	h.text(t, alice, "123456")
	h.text(t, alice, "abcdef12345")
	h.text(t, alice, "+14155550100")
	assert.Contains(t, h.prompter.last(t).Text, "5-digit code")

	require.NoError(t, h.engine.Cancel(context.Background(), alice, h.prompter))

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Equal(t, 1, h.client.CloseCalls)
	h.accRepo.AssertNumberOfCalls(t, "Create", 0)
}

func TestOnboardingSignInFailureClosesPendingSession(t *testing.T) {
	h := newHarness()
	h.client.SignInErr = errors.New("code expired")
	h.accRepo.On("ByPhone", mock.Anything, "+14155550100").
		Return(domain.Account{}, repository.ErrNotFound)

	h.enter(t, alice, Onboarding)
	h.text(t, alice, "123456")
	h.text(t, alice, "abcdef12345")
	h.text(t, alice, "+14155550100")
	h.text(t, alice, "12345")

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Contains(t, h.prompter.last(t).Text, "sign-in failed")
	assert.Equal(t, 1, h.client.CloseCalls)
	h.accRepo.AssertNumberOfCalls(t, "Create", 0)
}

func eligible(owner int64) []domain.Account {
	return []domain.Account{
		{ID: 1, Phone: "+14155550100", OwnerID: owner, Active: true},
		{ID: 2, Phone: "+14155550101", OwnerID: owner, Active: true},
	}
}

func TestSelectionOutOfRangeAborts(t *testing.T) {
	h := newHarness()
	h.accRepo.On("Eligible", mock.Anything).Return(eligible(alice.ID), nil)

	h.enter(t, alice, Broadcast)
	require.Len(t, h.prompter.last(t).Options, 2)

	h.pick(t, alice, 5)

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Contains(t, h.prompter.last(t).Text, "Something went wrong")
}

func TestSelectionOwnershipViolationAborts(t *testing.T) {
	h := newHarness()
	h.accRepo.On("Eligible", mock.Anything).Return(eligible(bob.ID), nil)

	h.enter(t, alice, Broadcast)
	h.pick(t, alice, 0)

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Contains(t, h.prompter.last(t).Text, "not yours to use")
}

func TestPrivilegedUserBypassesOwnership(t *testing.T) {
	h := newHarness()
	h.accRepo.On("Eligible", mock.Anything).Return(eligible(bob.ID), nil)
	h.accRepo.On("Touch", mock.Anything, int64(1)).Return(nil)
	h.client.Groups = []domain.GroupRef{{ID: 10, Title: "g"}}

	h.enter(t, root, Broadcast)
	h.pick(t, root, 0)

	assert.True(t, h.store.InProgress(root.ID))
	assert.Contains(t, h.prompter.last(t).Text, "message to broadcast")
}

func TestBroadcastAggregatesPartialFailures(t *testing.T) {
	h := newHarness()
	h.accRepo.On("Eligible", mock.Anything).Return(eligible(alice.ID), nil)
	h.accRepo.On("Touch", mock.Anything, int64(1)).Return(nil).Once()

	h.client.Groups = []domain.GroupRef{
		{ID: 10, Title: "alpha"},
		{ID: 11, Title: "beta"},
		{ID: 12, Title: "gamma"},
	}
	h.client.FailSendTo = map[int64]error{11: errors.New("flood wait")}

	h.enter(t, alice, Broadcast)
	h.pick(t, alice, 0)
	h.text(t, alice, "hello groups")

	assert.False(t, h.store.InProgress(alice.ID))
	final := h.prompter.last(t).Text
	assert.Contains(t, final, "Succeeded: 2")
	assert.Contains(t, final, "Failed: 1")
	assert.Contains(t, final, "beta")
	assert.Equal(t, []int64{10, 12}, h.client.SentTo)
	h.accRepo.AssertCalled(t, "Touch", mock.Anything, int64(1))
}

func TestGroupCreateCompletesWithInviteLink(t *testing.T) {
	h := newHarness()
	h.accRepo.On("Eligible", mock.Anything).Return(eligible(alice.ID), nil)
	h.accRepo.On("Touch", mock.Anything, int64(2)).Return(nil)
	h.grpRepo.On("Record", mock.Anything, mock.MatchedBy(func(g domain.GroupRecord) bool {
		return g.Title == "My Group" && g.AccountPhone == "+14155550101" && g.OwnerID == alice.ID
	})).Return(nil).Once()
	h.client.CreateResults = []domain.GroupResult{{ChatID: 500, InviteLink: "https://t.me/+abc"}}

	h.enter(t, alice, GroupCreate)
	h.pick(t, alice, 1)
	h.text(t, alice, "My Group")

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Contains(t, h.prompter.last(t).Text, "https://t.me/+abc")
	h.grpRepo.AssertExpectations(t)
}

func TestBulkCreateToleratesPerItemFailure(t *testing.T) {
	h := newHarness()
	h.accRepo.On("Eligible", mock.Anything).Return(eligible(alice.ID), nil)
	h.accRepo.On("Touch", mock.Anything, int64(1)).Return(nil)
	h.grpRepo.On("Record", mock.Anything, mock.Anything).Return(nil)
	h.client.CreateErrs = []error{nil, errors.New("flood wait"), nil}

	h.enter(t, alice, BulkCreate)
	h.pick(t, alice, 0)

	h.text(t, alice, "0")
	assert.Contains(t, h.prompter.last(t).Text, "between 1 and 50")

	h.text(t, alice, "3")
	h.text(t, alice, "Promo")

	assert.False(t, h.store.InProgress(alice.ID))
	final := h.prompter.last(t).Text
	assert.Contains(t, final, "Succeeded: 2")
	assert.Contains(t, final, "Failed: 1")
	assert.Equal(t, []string{"Promo 1", "Promo 2", "Promo 3"}, h.client.CreateNames)
}

func TestMultiCreateMakesOneGroupPerAccount(t *testing.T) {
	h := newHarness()
	h.accRepo.On("Eligible", mock.Anything).Return(eligible(alice.ID), nil)
	h.accRepo.On("Touch", mock.Anything, mock.Anything).Return(nil)
	h.grpRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	h.enter(t, alice, MultiCreate)
	h.text(t, alice, "Everywhere")

	assert.False(t, h.store.InProgress(alice.ID))
	assert.Contains(t, h.prompter.last(t).Text, "Succeeded: 2")
	assert.Equal(t, []string{"Everywhere", "Everywhere"}, h.client.CreateNames)
	assert.Len(t, h.dialer.RestoredAccs, 2)
}

func TestMultiCreateSkipsForeignAccounts(t *testing.T) {
	h := newHarness()
	accs := append(eligible(alice.ID), domain.Account{
		ID: 3, Phone: "+14155550102", OwnerID: bob.ID, Active: true,
	})
	h.accRepo.On("Eligible", mock.Anything).Return(accs, nil)
	h.accRepo.On("Touch", mock.Anything, mock.Anything).Return(nil)
	h.grpRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	h.enter(t, alice, MultiCreate)
	h.text(t, alice, "Everywhere")

	assert.Len(t, h.dialer.RestoredAccs, 2)
	for _, acc := range h.dialer.RestoredAccs {
		assert.Equal(t, alice.ID, acc.OwnerID)
	}
}

func TestMultiCreatePrivilegedSpansAllAccounts(t *testing.T) {
	h := newHarness()
	accs := append(eligible(alice.ID), domain.Account{
		ID: 3, Phone: "+14155550102", OwnerID: bob.ID, Active: true,
	})
	h.accRepo.On("Eligible", mock.Anything).Return(accs, nil)
	h.accRepo.On("Touch", mock.Anything, mock.Anything).Return(nil)
	h.grpRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	h.enter(t, root, MultiCreate)
	h.text(t, root, "Everywhere")

	assert.Len(t, h.dialer.RestoredAccs, 3)
}

func TestEnteringWorkflowDiscardsPriorSession(t *testing.T) {
	h := newHarness()

	h.enter(t, alice, Onboarding)
	h.text(t, alice, "123456")
	assert.Equal(t, "api_hash", h.store.Get(alice.ID).Step)

	h.enter(t, alice, MultiCreate)
	bag := h.store.Get(alice.ID)
	assert.Equal(t, MultiCreate, bag.Flow)
	assert.Equal(t, "title", bag.Step)
	_, leftover := bag.Value(fieldAPIID)
	assert.False(t, leftover)
}
