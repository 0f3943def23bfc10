package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEmailPayload(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		fallback     string
		wantTemplate string
		wantErr      string
		wantInvalid  bool
	}{
		{
			name:         "complete payload",
			raw:          `{"to":"reader@example.com","subject":"Hi","template":"verify_email","vars":{"verify_url":"https://x"}}`,
			wantTemplate: "verify_email",
		},
		{
			name:         "template taken from the row",
			raw:          `{"to":"reader@example.com","subject":"Hi"}`,
			fallback:     "password_reset",
			wantTemplate: "password_reset",
		},
		{
			name:    "missing to",
			raw:     `{"subject":"Hi","template":"verify_email"}`,
			wantErr: "missing required field: to",
		},
		{
			name:    "blank to",
			raw:     `{"to":"  ","subject":"Hi","template":"verify_email"}`,
			wantErr: "missing required field: to",
		},
		{
			name:    "malformed address",
			raw:     `{"to":"not-an-address","subject":"Hi","template":"verify_email"}`,
			wantErr: "invalid field: to",
		},
		{
			name:    "missing subject",
			raw:     `{"to":"reader@example.com","template":"verify_email"}`,
			wantErr: "missing required field: subject",
		},
		{
			name:    "missing template everywhere",
			raw:     `{"to":"reader@example.com","subject":"Hi"}`,
			wantErr: "missing required field: template",
		},
		{
			name:        "not json",
			raw:         `{"to":`,
			wantErr:     "invalid payload",
			wantInvalid: true,
		},
		{
			name:        "json array",
			raw:         `[1,2]`,
			wantErr:     "invalid payload",
			wantInvalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeEmailPayload([]byte(tt.raw), tt.fallback)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantInvalid, errors.Is(err, ErrInvalidPayload))
				if !tt.wantInvalid {
					var verr *ValidationError
					assert.True(t, errors.As(err, &verr))
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "reader@example.com", p.To)
			assert.Equal(t, tt.wantTemplate, p.Template)
		})
	}
}
