package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/account-settings/internal/http/v1/account"
	"github.com/janisto/account-settings/internal/http/v1/uploads"
	"github.com/janisto/account-settings/internal/platform/auth"
	accountsvc "github.com/janisto/account-settings/internal/service/account"
	"github.com/janisto/account-settings/internal/service/storage"
)

// Register wires all v1 routes into the provided API. The upload endpoint is
// registered only when uploader is non-nil.
func Register(
	api huma.API,
	verifier auth.Verifier,
	accountService accountsvc.Service,
	uploader storage.Uploader,
	maxBodyBytes int64,
) {
	// Apply auth middleware for protected endpoints
	api.UseMiddleware(auth.NewAuthMiddleware(api, verifier))

	account.Register(api, accountService, maxBodyBytes)
	if uploader != nil {
		uploads.Register(api, uploader, maxBodyBytes)
	}
}
