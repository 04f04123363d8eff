package uploads

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/account-settings/internal/platform/auth"
	"github.com/janisto/account-settings/internal/service/storage"
)

// Register registers the upload endpoint.
func Register(api huma.API, uploader storage.Uploader, maxBodyBytes int64) {
	huma.Register(api, huma.Operation{
		OperationID:  "create-upload",
		Method:       http.MethodPost,
		Path:         "/uploads",
		Summary:      "Store an encoded file",
		Description:  "Stores a base64 data URL under <type>/<filename> and returns its reference. Callers may only write their own objects.",
		Tags:         []string{"Uploads"},
		MaxBodyBytes: maxBodyBytes,
		Security: []map[string][]string{
			{"bearerAuth": {}},
		},
	}, func(ctx context.Context, input *UploadInput) (*UploadOutput, error) {
		user := auth.UserFromContext(ctx)
		if input.Body.Filename != user.UID {
			return nil, huma.Error403Forbidden("filename must match the authenticated user")
		}

		ref, err := uploader.Upload(ctx, storage.Object{
			Kind:    input.Body.Type,
			Key:     input.Body.Filename,
			Payload: input.Body.Content,
		})
		if err != nil {
			return nil, mapServiceError(err)
		}

		out := &UploadOutput{}
		out.Body.URL = ref
		return out, nil
	})
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidObject), errors.Is(err, storage.ErrInvalidPayload):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("request canceled")
	default:
		return huma.Error502BadGateway("upload failed")
	}
}
