package account

// AccountGetInput for GET /account (no body needed)
type AccountGetInput struct{}

// AccountUpdateInput for PUT /account
type AccountUpdateInput struct {
	Body struct {
		DisplayName        string      `json:"displayName"                  maxLength:"100" doc:"Display name"                                             example:"Alice"`
		Email              string      `json:"email"                        maxLength:"254" doc:"Email address"                                            example:"alice@example.com"`
		Avatar             AvatarInput `json:"avatar,omitempty"             required:"false" doc:"Avatar change"`
		OldPassword        string      `json:"oldPassword,omitempty"        maxLength:"128" doc:"Current password, needed to change password or email"`
		NewPassword        string      `json:"newPassword,omitempty"        maxLength:"128" doc:"New password"`
		NewPasswordConfirm string      `json:"newPasswordConfirm,omitempty" maxLength:"128" doc:"New password, repeated"`
	}
}

// AvatarInput selects the avatar change.
type AvatarInput struct {
	Action string `json:"action,omitempty" enum:"unchanged,set,reset" default:"unchanged" doc:"Avatar action"`
	Image  []byte `json:"image,omitempty"  required:"false"                               doc:"Image file contents (base64 in JSON), only with action=set"`
}
