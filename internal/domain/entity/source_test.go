package entity

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Validate_FillsDefaults(t *testing.T) {
	s := &Source{URL: "https://example.com/feed.xml", Title: "  Example  "}

	require.NoError(t, s.Validate())
	assert.Equal(t, "Example", s.Title)
	assert.Equal(t, DefaultCategory, s.Category)
	assert.Equal(t, DefaultIcon, s.Icon)
	assert.Equal(t, DefaultUserID, s.UserID)
	assert.True(t, s.OwnedBy(DefaultUserID))
	assert.False(t, s.OwnedBy(uuid.New()))
}

func TestSource_Validate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   Source
		field string
	}{
		{name: "missing url", src: Source{Title: "x"}, field: "url"},
		{name: "ftp scheme", src: Source{URL: "ftp://example.com/feed", Title: "x"}, field: "url"},
		{name: "loopback literal", src: Source{URL: "http://127.0.0.1/feed", Title: "x"}, field: "url"},
		{name: "private literal", src: Source{URL: "http://10.0.0.8/feed", Title: "x"}, field: "url"},
		{name: "blank title", src: Source{URL: "https://example.com/feed", Title: " "}, field: "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}
