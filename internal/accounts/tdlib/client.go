// Package tdlib adapts a TDLib user-account session to the accounts.Client
// contract: interactive code/password authorization for onboarding, and
// group creation / broadcast calls for already-authorized accounts.
package tdlib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zelenin/go-tdlib/client"

	"groupcast/core/logger"
	"groupcast/internal/accounts"
	"groupcast/internal/domain"
)

type authStage int

const (
	stageWaitCode authStage = iota
	stageWaitPassword
	stageReady
)

// Client drives one TDLib session.
type Client struct {
	creds      accounts.Credentials
	sessionDir string
	log        *slog.Logger

	codeCh     chan string
	passwordCh chan string

	stages chan authStage
	errCh  chan error
	apiCh  chan *client.Client

	mu       sync.Mutex
	api      *client.Client
	codeHash string
	closed   bool
}

// authTimeout bounds how long we wait for TDLib to move between
// authorization states before giving up on the attempt.
const authTimeout = 90 * time.Second

func newClient(creds accounts.Credentials, sessionDir string) (*Client, error) {
	dbDir := filepath.Join(sessionDir, "database")
	filesDir := filepath.Join(sessionDir, "files")
	for _, dir := range []string{dbDir, filesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tdlib: mkdir %s: %w", dir, err)
		}
	}

	c := &Client{
		creds:      creds,
		sessionDir: sessionDir,
		log:        logger.ACC,
		stages:     make(chan authStage, 8),
		errCh:      make(chan error, 1),
		apiCh:      make(chan *client.Client, 1),
	}

	params := &client.SetTdlibParametersRequest{
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		ApiId:               creds.APIID,
		ApiHash:             creds.APIHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "groupcast",
		SystemVersion:       "1.0",
		ApplicationVersion:  "1.0",
	}

	authorizer := client.ClientAuthorizer(params)
	c.codeCh = authorizer.Code
	c.passwordCh = authorizer.Password

	go func() {
		for state := range authorizer.State {
			switch state.AuthorizationStateType() {
			case client.TypeAuthorizationStateWaitPhoneNumber:
				authorizer.PhoneNumber <- creds.Phone
			case client.TypeAuthorizationStateWaitCode:
				c.stages <- stageWaitCode
			case client.TypeAuthorizationStateWaitPassword:
				c.stages <- stageWaitPassword
			case client.TypeAuthorizationStateReady:
				c.stages <- stageReady
			}
		}
	}()

	go func() {
		api, err := client.NewClient(authorizer)
		if err != nil {
			c.log.Error("tdlib client failed",
				slog.String("event", "accounts.dial"),
				slog.String("phone", creds.Phone),
				slog.String("err", err.Error()),
			)
			c.errCh <- err
			return
		}
		c.mu.Lock()
		c.api = api
		c.mu.Unlock()
		c.apiCh <- api
	}()

	return c, nil
}

func (c *Client) waitStage(ctx context.Context) (authStage, error) {
	timer := time.NewTimer(authTimeout)
	defer timer.Stop()
	select {
	case st := <-c.stages:
		return st, nil
	case err := <-c.errCh:
		return 0, err
	case <-timer.C:
		return 0, errors.New("tdlib: authorization timed out")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SendCode waits for Telegram to request the verification code for the
// credentials' phone. TDLib tracks the code hash internally; the returned
// hash is an opaque correlation token for the workflow.
func (c *Client) SendCode(ctx context.Context) (string, error) {
	st, err := c.waitStage(ctx)
	if err != nil {
		return "", err
	}
	if st != stageWaitCode {
		return "", fmt.Errorf("tdlib: unexpected authorization stage %d", st)
	}
	hash := uuid.NewString()
	c.mu.Lock()
	c.codeHash = hash
	c.mu.Unlock()
	c.log.Info("verification code requested",
		slog.String("event", "accounts.send_code"),
		slog.String("phone", c.creds.Phone),
	)
	return hash, nil
}

// SignIn submits the verification code. A two-factor-protected account
// reports NeedsPassword instead of a session credential.
func (c *Client) SignIn(ctx context.Context, code, hash string) (accounts.SignInResult, error) {
	c.mu.Lock()
	expected := c.codeHash
	c.mu.Unlock()
	if expected == "" || hash != expected {
		return accounts.SignInResult{}, errors.New("tdlib: unknown code hash")
	}

	c.codeCh <- code
	st, err := c.waitStage(ctx)
	if err != nil {
		return accounts.SignInResult{}, err
	}
	switch st {
	case stageWaitPassword:
		return accounts.SignInResult{NeedsPassword: true}, nil
	case stageReady:
		return c.finishAuth(ctx)
	default:
		return accounts.SignInResult{}, fmt.Errorf("tdlib: unexpected authorization stage %d", st)
	}
}

// SignInWithPassword completes the two-factor detour.
func (c *Client) SignInWithPassword(ctx context.Context, password string) (accounts.SignInResult, error) {
	c.passwordCh <- password
	st, err := c.waitStage(ctx)
	if err != nil {
		return accounts.SignInResult{}, err
	}
	if st != stageReady {
		return accounts.SignInResult{}, fmt.Errorf("tdlib: unexpected authorization stage %d", st)
	}
	return c.finishAuth(ctx)
}

// finishAuth waits for the underlying client handle and returns the reusable
// session credential (the session directory, which TDLib re-opens silently).
func (c *Client) finishAuth(ctx context.Context) (accounts.SignInResult, error) {
	if _, err := c.waitAPI(ctx); err != nil {
		return accounts.SignInResult{}, err
	}
	c.log.Info("account authorized",
		slog.String("event", "accounts.sign_in"),
		slog.String("phone", c.creds.Phone),
	)
	return accounts.SignInResult{Session: c.sessionDir}, nil
}

func (c *Client) waitAPI(ctx context.Context) (*client.Client, error) {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()
	if api != nil {
		return api, nil
	}
	timer := time.NewTimer(authTimeout)
	defer timer.Stop()
	select {
	case api := <-c.apiCh:
		return api, nil
	case err := <-c.errCh:
		return nil, err
	case <-timer.C:
		return nil, errors.New("tdlib: client start timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CreateGroup creates a supergroup owned by this account and resolves an
// invite link for it.
func (c *Client) CreateGroup(ctx context.Context, title, about string) (domain.GroupResult, error) {
	api, err := c.waitAPI(ctx)
	if err != nil {
		return domain.GroupResult{}, err
	}

	chat, err := api.CreateNewSupergroupChat(&client.CreateNewSupergroupChatRequest{
		Title:       title,
		Description: about,
	})
	if err != nil {
		return domain.GroupResult{}, fmt.Errorf("create supergroup: %w", err)
	}

	link, err := api.CreateChatInviteLink(&client.CreateChatInviteLinkRequest{
		ChatId: chat.Id,
	})
	if err != nil {
		// The group exists; a missing link is reported but not fatal.
		c.log.Warn("invite link failed",
			slog.String("event", "accounts.invite_link"),
			slog.Int64("group_id", chat.Id),
			slog.String("err", err.Error()),
		)
		return domain.GroupResult{ChatID: chat.Id}, nil
	}

	return domain.GroupResult{ChatID: chat.Id, InviteLink: link.InviteLink}, nil
}

// OwnGroups lists chats where this account is the original creator, not
// merely an administrator.
func (c *Client) OwnGroups(ctx context.Context) ([]domain.GroupRef, error) {
	api, err := c.waitAPI(ctx)
	if err != nil {
		return nil, err
	}

	chats, err := api.GetChats(&client.GetChatsRequest{Limit: 400})
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	var out []domain.GroupRef
	for _, chatID := range chats.ChatIds {
		chat, err := api.GetChat(&client.GetChatRequest{ChatId: chatID})
		if err != nil {
			continue
		}
		if c.isCreator(api, chat) {
			out = append(out, domain.GroupRef{ID: chat.Id, Title: chat.Title})
		}
	}
	return out, nil
}

func (c *Client) isCreator(api *client.Client, chat *client.Chat) bool {
	switch t := chat.Type.(type) {
	case *client.ChatTypeSupergroup:
		if t.IsChannel {
			return false
		}
		sg, err := api.GetSupergroup(&client.GetSupergroupRequest{SupergroupId: t.SupergroupId})
		if err != nil {
			return false
		}
		return sg.Status.ChatMemberStatusType() == client.TypeChatMemberStatusCreator
	case *client.ChatTypeBasicGroup:
		bg, err := api.GetBasicGroup(&client.GetBasicGroupRequest{BasicGroupId: t.BasicGroupId})
		if err != nil {
			return false
		}
		return bg.Status.ChatMemberStatusType() == client.TypeChatMemberStatusCreator
	default:
		return false
	}
}

// SendMessage delivers text to one chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	api, err := c.waitAPI(ctx)
	if err != nil {
		return err
	}
	_, err = api.SendMessage(&client.SendMessageRequest{
		ChatId: chatID,
		InputMessageContent: &client.InputMessageText{
			Text: &client.FormattedText{Text: text},
		},
	})
	return err
}

// Close shuts the session down; the stored credential stays reusable.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	api := c.api
	c.mu.Unlock()

	if api != nil {
		if _, err := api.Close(); err != nil {
			return err
		}
	}
	return nil
}
