package account

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/account-settings/internal/platform/auth"
	"github.com/janisto/account-settings/internal/platform/timeutil"
	accountsvc "github.com/janisto/account-settings/internal/service/account"
	"github.com/janisto/account-settings/internal/service/identity"
)

// Register registers account endpoints. maxBodyBytes bounds the update body,
// which may carry an avatar image.
func Register(api huma.API, svc accountsvc.Service, maxBodyBytes int64) {
	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/account",
		Summary:     "Get current account settings",
		Description: "Returns the account as last seen by the authenticated user.",
		Tags:        []string{"Account"},
		Security: []map[string][]string{
			{"bearerAuth": {}},
		},
	}, func(ctx context.Context, _ *AccountGetInput) (*AccountGetOutput, error) {
		user := auth.UserFromContext(ctx)

		profile, err := svc.Get(ctx, user.UID)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return &AccountGetOutput{Body: toHTTPAccount(profile)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "update-account",
		Method:       http.MethodPut,
		Path:         "/account",
		Summary:      "Update account settings",
		Description:  "Applies avatar, display name, password and email changes in that order. The first failure stops the run; earlier changes stay applied.",
		Tags:         []string{"Account"},
		MaxBodyBytes: maxBodyBytes,
		Security: []map[string][]string{
			{"bearerAuth": {}},
		},
	}, func(ctx context.Context, input *AccountUpdateInput) (*AccountUpdateOutput, error) {
		user := auth.UserFromContext(ctx)

		out, err := svc.Submit(ctx, user.UID, accountsvc.UpdateRequest{
			DisplayName: input.Body.DisplayName,
			Email:       input.Body.Email,
			Avatar: accountsvc.AvatarChange{
				Action: accountsvc.AvatarAction(input.Body.Avatar.Action),
				Image:  input.Body.Avatar.Image,
			},
			OldPassword:        input.Body.OldPassword,
			NewPassword:        input.Body.NewPassword,
			NewPasswordConfirm: input.Body.NewPasswordConfirm,
		})
		if err != nil {
			return nil, mapServiceError(err)
		}
		if !out.Success {
			return nil, mapOutcomeError(out.Err)
		}
		return &AccountUpdateOutput{Body: toUpdateResult(out)}, nil
	})
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, accountsvc.ErrRunInProgress):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("request timed out")
	case errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("request canceled")
	case identity.CodeOf(err) == identity.CodeUserNotFound:
		return huma.Error404NotFound("account not found")
	default:
		return huma.Error500InternalServerError("internal error")
	}
}

// mapOutcomeError maps a failed run to a problem whose detail is the run's message.
func mapOutcomeError(e *accountsvc.Error) error {
	if e == nil {
		return huma.Error500InternalServerError("internal error")
	}
	code := identity.CodeOf(e)
	switch e.Kind {
	case accountsvc.ErrorKindValidation, accountsvc.ErrorKindImage:
		return huma.Error422UnprocessableEntity(e.Message)
	case accountsvc.ErrorKindUpload:
		return huma.Error502BadGateway(e.Message)
	case accountsvc.ErrorKindAuth:
		if code == identity.CodeTooManyAttempts {
			return huma.Error429TooManyRequests(e.Message)
		}
		return huma.Error403Forbidden(e.Message)
	}

	switch code {
	case identity.CodeEmailAlreadyExists:
		return huma.Error409Conflict(e.Message)
	case identity.CodeWeakPassword, identity.CodeInvalidArgument:
		return huma.Error422UnprocessableEntity(e.Message)
	case identity.CodeTooManyAttempts:
		return huma.Error429TooManyRequests(e.Message)
	case identity.CodeUserNotFound:
		return huma.Error404NotFound(e.Message)
	case identity.CodeUserDisabled:
		return huma.Error403Forbidden(e.Message)
	default:
		return huma.Error502BadGateway(e.Message)
	}
}

func toHTTPAccount(p *accountsvc.Profile) Account {
	return Account{
		ID:            p.UserID,
		DisplayName:   p.DisplayName,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		AvatarURL:     p.AvatarURL,
		RefreshedAt:   timeutil.Time{Time: p.RefreshedAt},
	}
}

func toUpdateResult(out *accountsvc.Outcome) UpdateResult {
	res := UpdateResult{
		Success: out.Success,
		Message: out.Message,
		Applied: make([]string, 0, len(out.Applied)),
	}
	for _, s := range out.Applied {
		res.Applied = append(res.Applied, string(s))
	}
	for _, s := range out.Skipped {
		res.Skipped = append(res.Skipped, SkippedStep{Step: string(s.Step), Reason: s.Reason})
	}
	if out.Profile != nil {
		acc := toHTTPAccount(out.Profile)
		res.Profile = &acc
	}
	return res
}
