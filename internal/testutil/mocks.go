// Package testutil provides repository mocks and account-capability stubs
// shared by the engine, flow, and service tests.
package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"groupcast/internal/accounts"
	"groupcast/internal/domain"
)

// MockAccountRepository is a mock for repository.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, acc domain.Account) (domain.Account, error) {
	args := m.Called(ctx, acc)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockAccountRepository) ByPhone(ctx context.Context, phone string) (domain.Account, error) {
	args := m.Called(ctx, phone)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockAccountRepository) ByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) Eligible(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) IdleSince(ctx context.Context, cutoff time.Time) ([]domain.Account, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) Touch(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAccountRepository) SetActive(ctx context.Context, phone string, active bool) error {
	args := m.Called(ctx, phone, active)
	return args.Error(0)
}

func (m *MockAccountRepository) SetBanned(ctx context.Context, phone string, banned bool) error {
	args := m.Called(ctx, phone, banned)
	return args.Error(0)
}

// MockGroupRepository is a mock for repository.GroupRepository.
type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) Record(ctx context.Context, g domain.GroupRecord) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *MockGroupRepository) ByOwner(ctx context.Context, ownerID int64) ([]domain.GroupRecord, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.GroupRecord), args.Error(1)
}

// StubClient is a scriptable accounts.Client.
type StubClient struct {
	CodeHash      string
	SendCodeErr   error
	NeedsPassword bool
	Session       string
	SignInErr     error
	PasswordErr   error

	Groups    []domain.GroupRef
	GroupsErr error
	// FailSendTo lists chat IDs whose SendMessage fails.
	FailSendTo map[int64]error

	CreateResults []domain.GroupResult
	CreateErrs    []error
	createCalls   int

	SentTo      []int64
	SentText    []string
	SignedIn    bool
	UsedCode    string
	UsedHash    string
	UsedPass    string
	CloseCalls  int
	CreateNames []string
}

func (s *StubClient) SendCode(ctx context.Context) (string, error) {
	if s.SendCodeErr != nil {
		return "", s.SendCodeErr
	}
	if s.CodeHash == "" {
		s.CodeHash = "stub-code-hash"
	}
	return s.CodeHash, nil
}

func (s *StubClient) SignIn(ctx context.Context, code, hash string) (accounts.SignInResult, error) {
	s.UsedCode = code
	s.UsedHash = hash
	if s.SignInErr != nil {
		return accounts.SignInResult{}, s.SignInErr
	}
	if s.NeedsPassword {
		return accounts.SignInResult{NeedsPassword: true}, nil
	}
	s.SignedIn = true
	return accounts.SignInResult{Session: s.Session}, nil
}

func (s *StubClient) SignInWithPassword(ctx context.Context, password string) (accounts.SignInResult, error) {
	s.UsedPass = password
	if s.PasswordErr != nil {
		return accounts.SignInResult{}, s.PasswordErr
	}
	s.SignedIn = true
	return accounts.SignInResult{Session: s.Session}, nil
}

func (s *StubClient) CreateGroup(ctx context.Context, title, about string) (domain.GroupResult, error) {
	i := s.createCalls
	s.createCalls++
	s.CreateNames = append(s.CreateNames, title)
	if i < len(s.CreateErrs) && s.CreateErrs[i] != nil {
		return domain.GroupResult{}, s.CreateErrs[i]
	}
	if i < len(s.CreateResults) {
		return s.CreateResults[i], nil
	}
	return domain.GroupResult{ChatID: int64(1000 + i), InviteLink: "https://t.me/+stub"}, nil
}

func (s *StubClient) OwnGroups(ctx context.Context) ([]domain.GroupRef, error) {
	if s.GroupsErr != nil {
		return nil, s.GroupsErr
	}
	return s.Groups, nil
}

func (s *StubClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := s.FailSendTo[chatID]; err != nil {
		return err
	}
	s.SentTo = append(s.SentTo, chatID)
	s.SentText = append(s.SentText, text)
	return nil
}

func (s *StubClient) Close() error {
	s.CloseCalls++
	return nil
}

// StubDialer hands out scripted clients.
type StubDialer struct {
	Client     *StubClient
	DialErr    error
	RestoreErr error

	DialedWith   []accounts.Credentials
	RestoredAccs []domain.Account
}

func (d *StubDialer) Dial(ctx context.Context, creds accounts.Credentials) (accounts.Client, error) {
	d.DialedWith = append(d.DialedWith, creds)
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Client, nil
}

func (d *StubDialer) Restore(ctx context.Context, acc domain.Account) (accounts.Client, error) {
	d.RestoredAccs = append(d.RestoredAccs, acc)
	if d.RestoreErr != nil {
		return nil, d.RestoreErr
	}
	return d.Client, nil
}
