package validate_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-console/internal/validate"
	"github.com/stretchr/testify/require"
)

type resetForm struct {
	Token    string `form:"token" validate:"required"`
	Password string `form:"new_password" validate:"required,password"`
	Confirm  string `form:"confirm_password" validate:"eqfield=Password"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func TestValidator_Struct(t *testing.T) {
	v := validate.New()

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, v.Struct(resetForm{Token: "t", Password: "secret123", Confirm: "secret123"}))
	})

	t.Run("field messages use form names", func(t *testing.T) {
		err := v.Struct(resetForm{Password: "short", Confirm: "other", Email: "nope"})

		var verr *validate.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "token is required", verr.Field("token"))
		require.Contains(t, verr.Field("new_password"), "at least 8 characters")
		require.Equal(t, "confirm password does not match", verr.Field("confirm_password"))
		require.Equal(t, "email must be a valid email address", verr.Field("email"))
		require.Contains(t, err.Error(), "validation failed: ")
	})

	t.Run("password needs a digit", func(t *testing.T) {
		err := v.Struct(resetForm{Token: "t", Password: "lettersonly", Confirm: "lettersonly"})
		var verr *validate.ValidationError
		require.ErrorAs(t, err, &verr)
		require.NotEmpty(t, verr.Field("new_password"))
	})
}

func TestValidator_Var(t *testing.T) {
	v := validate.New()
	require.NoError(t, v.Var("admin@example.com", "required,email"))
	require.Error(t, v.Var("admin", "required,email"))
}
