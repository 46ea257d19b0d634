package flows

import (
	"regexp"
	"strconv"

	"groupcast/internal/accounts"
	"groupcast/internal/domain"
	"groupcast/internal/flow"
)

var codePattern = regexp.MustCompile(`^\d{5}$`)

// OnboardingFlow collects API credentials and a phone number, drives the
// verification-code sign-in (with the two-factor detour), and persists the
// account only at the very end. A half-finished onboarding leaves no record.
func (f *Flows) OnboardingFlow() *flow.Workflow {
	w := flow.New(Onboarding,
		flow.Step{
			Name: "api_id",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "🔑 Send the numeric API ID for this account.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				if _, err := strconv.ParseInt(fc.Input, 10, 32); err != nil {
					return flow.Invalid("API ID must be a number.")
				}
				return nil
			},
			Effect: func(fc *flow.Context) (flow.Result, error) {
				id, _ := strconv.ParseInt(fc.Input, 10, 32)
				fc.Bag.Set(fieldAPIID, id)
				return flow.Advanced(), nil
			},
			Next: "api_hash",
		},
		flow.Step{
			Name: "api_hash",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "🔒 Now send the API hash.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				if len(fc.Input) < 10 {
					return flow.Invalid("That does not look like an API hash, it is too short.")
				}
				return nil
			},
			Effect: func(fc *flow.Context) (flow.Result, error) {
				fc.Bag.Set(fieldAPIHash, fc.Input)
				return flow.Advanced(), nil
			},
			Next: "phone",
		},
		flow.Step{
			Name: "phone",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "📞 Send the phone number in international format, e.g. +14155550100.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				if err := validate.Var(fc.Input, "e164"); err != nil {
					return flow.Invalid("Phone must be in international format, e.g. +14155550100.")
				}
				return nil
			},
			Effect: f.phoneEffect,
			Next:   "send_code",
		},
		flow.Step{
			Name:   "send_code",
			Kind:   flow.Run,
			Effect: f.sendCodeEffect,
			Next:   "code",
		},
		flow.Step{
			Name: "code",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "💬 A verification code was sent to the account. Send the 5-digit code.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				if !codePattern.MatchString(fc.Input) {
					return flow.Invalid("The code is exactly 5 digits.")
				}
				return nil
			},
			Effect:     f.codeEffect,
			BranchNext: "password",
		},
		flow.Step{
			Name: "password",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "🔐 This account has two-factor authentication. Send the password.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				if fc.Input == "" {
					return flow.Invalid("The password cannot be empty.")
				}
				return nil
			},
			Effect: f.passwordEffect,
		},
	)
	w.Cleanup = closePendingClient
	return w
}

// closePendingClient shuts down the dialed account session when onboarding
// ends before persisting, so a cancelled or aborted run does not leak the
// open connection. The successful path closes the client itself.
func closePendingClient(fc *flow.Context) {
	if cl, err := pendingClient(fc); err == nil {
		cl.Close()
	}
}

// phoneEffect runs the uniqueness pre-check and opens the account session.
// A duplicate phone aborts here, before any external sign-in traffic.
func (f *Flows) phoneEffect(fc *flow.Context) (flow.Result, error) {
	if err := f.accounts.CheckUnique(fc.Ctx, fc.Input, fc.User.ID); err != nil {
		return flow.Result{}, err
	}

	id, ok := fc.Bag.Int64(fieldAPIID)
	if !ok {
		return flow.Result{}, flow.ErrSessionExpired
	}
	hash, err := fc.Field(fieldAPIHash)
	if err != nil {
		return flow.Result{}, err
	}

	cl, err := f.dialer.Dial(fc.Ctx, accounts.Credentials{
		APIID:   int32(id),
		APIHash: hash,
		Phone:   fc.Input,
	})
	if err != nil {
		return flow.Result{}, flow.External("account connection", err)
	}

	fc.Bag.Set(fieldPhone, fc.Input)
	fc.Bag.Set(fieldClient, cl)
	return flow.Advanced(), nil
}

// sendCodeEffect runs on entry, without user input.
func (f *Flows) sendCodeEffect(fc *flow.Context) (flow.Result, error) {
	cl, err := pendingClient(fc)
	if err != nil {
		return flow.Result{}, err
	}
	hash, err := cl.SendCode(fc.Ctx)
	if err != nil {
		return flow.Result{}, flow.External("verification code request", err)
	}
	fc.Bag.Set(fieldCodeHash, hash)
	return flow.Advanced(), nil
}

// codeEffect attempts sign-in with the received code. A second-factor
// requirement branches to the password step; it is not a failure.
func (f *Flows) codeEffect(fc *flow.Context) (flow.Result, error) {
	cl, err := pendingClient(fc)
	if err != nil {
		return flow.Result{}, err
	}
	hash, err := fc.Field(fieldCodeHash)
	if err != nil {
		return flow.Result{}, err
	}

	res, err := cl.SignIn(fc.Ctx, fc.Input, hash)
	if err != nil {
		return flow.Result{}, flow.External("sign-in", err)
	}
	if res.NeedsPassword {
		return flow.Branched(), nil
	}
	return f.persist(fc, cl, res.Session)
}

func (f *Flows) passwordEffect(fc *flow.Context) (flow.Result, error) {
	cl, err := pendingClient(fc)
	if err != nil {
		return flow.Result{}, err
	}
	res, err := cl.SignInWithPassword(fc.Ctx, fc.Input)
	if err != nil {
		return flow.Result{}, flow.External("two-factor sign-in", err)
	}
	return f.persist(fc, cl, res.Session)
}

// persist creates the account record at the final successful step and closes
// the onboarding session. The stored credential survives the close.
func (f *Flows) persist(fc *flow.Context, cl accounts.Client, credential string) (flow.Result, error) {
	id, ok := fc.Bag.Int64(fieldAPIID)
	if !ok {
		return flow.Result{}, flow.ErrSessionExpired
	}
	hash, err := fc.Field(fieldAPIHash)
	if err != nil {
		return flow.Result{}, err
	}
	phone, err := fc.Field(fieldPhone)
	if err != nil {
		return flow.Result{}, err
	}

	created, err := f.accounts.Create(fc.Ctx, domain.Account{
		Phone:     phone,
		APIID:     int32(id),
		APIHash:   hash,
		Session:   &credential,
		OwnerID:   fc.User.ID,
		OwnerName: fc.User.Name,
	})
	if err != nil {
		// The abort path closes the stashed client via the cleanup hook.
		return flow.Result{}, err
	}
	cl.Close()

	return flow.Completed("✅ Account " + created.Phone + " is onboarded and ready to use."), nil
}

func pendingClient(fc *flow.Context) (accounts.Client, error) {
	v, ok := fc.Bag.Value(fieldClient)
	if !ok {
		return nil, flow.ErrSessionExpired
	}
	cl, ok := v.(accounts.Client)
	if !ok {
		return nil, flow.ErrSessionExpired
	}
	return cl, nil
}
