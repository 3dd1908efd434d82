package validate_test

import (
	"testing"

	"github.com/Astemirdum/lending-service/pkg/validate"
	"github.com/stretchr/testify/require"
)

func TestCustomValidator_Validate(t *testing.T) {
	type member struct {
		Name  string `validate:"required"`
		Email string `validate:"required,email"`
	}
	tests := []struct {
		name    string
		in      member
		wantErr bool
	}{
		{name: "ok", in: member{Name: "Juan", Email: "juan@example.com"}},
		{name: "no name", in: member{Email: "juan@example.com"}, wantErr: true},
		{name: "bad email", in: member{Name: "Juan", Email: "juan"}, wantErr: true},
	}
	v := validate.NewCustomValidator()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
