package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{name: "valid", username: "jane"},
		{name: "max length", username: strings.Repeat("x", MaxUsernameLen)},
		{name: "empty", username: "", wantErr: ErrUsernameEmpty},
		{name: "too long", username: strings.Repeat("x", MaxUsernameLen+1), wantErr: ErrUsernameTooLong},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u, err := NewUser("u1", tc.username)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, UserID("u1"), u.ID)
			assert.Equal(t, tc.username, u.Username)
		})
	}
}
