package requests_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/requests"
)

func TestDecodeSingle(t *testing.T) {
	t.Parallel()

	t.Run("valid body", func(t *testing.T) {
		t.Parallel()

		body := `{"recipient":"ann@example.com","subject":"Hi","context":{"name":"Ann"},"schedule_time":"2030-01-02T03:04:05"}`
		var req dispatch.SingleRequest
		require.NoError(t, requests.Decode(strings.NewReader(body), requests.Single, &req))

		assert.Equal(t, "ann@example.com", req.Recipient)
		assert.Equal(t, "Ann", req.Context[dispatch.KeyName])
		assert.Equal(t, dispatch.DefaultOffer, req.Context[dispatch.KeyOffer])
		require.NotNil(t, req.ScheduleTime)
		assert.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), req.ScheduleTime.Time)
	})

	t.Run("null schedule time", func(t *testing.T) {
		t.Parallel()

		body := `{"recipient":"ann@example.com","subject":"Hi","context":{},"schedule_time":null}`
		var req dispatch.SingleRequest
		require.NoError(t, requests.Decode(strings.NewReader(body), requests.Single, &req))
		assert.Nil(t, req.ScheduleTime)
	})

	tests := []struct {
		name string
		body string
		want requests.FieldError
	}{
		{
			name: "missing context",
			body: `{"recipient":"ann@example.com","subject":"Hi"}`,
			want: requests.FieldError{Loc: []string{"body", "context"}, Msg: "Field required", Type: "missing"},
		},
		{
			name: "bad address",
			body: `{"recipient":"nobody","subject":"Hi","context":{}}`,
			want: requests.FieldError{Loc: []string{"body", "recipient"}, Msg: "value is not a valid email address", Type: "value_error"},
		},
		{
			name: "bad schedule time",
			body: `{"recipient":"ann@example.com","subject":"Hi","context":{},"schedule_time":"next week"}`,
			want: requests.FieldError{Loc: []string{"body", "schedule_time"}, Msg: "Input should be a valid datetime", Type: "value_error"},
		},
		{
			name: "wrong type",
			body: `{"recipient":"ann@example.com","subject":5,"context":{}}`,
			want: requests.FieldError{Loc: []string{"body", "subject"}, Msg: "Input should be string", Type: "type_error"},
		},
		{
			name: "malformed json",
			body: `{"recipient":`,
			want: requests.FieldError{Loc: []string{"body"}, Type: "json_invalid"},
		},
		{
			name: "empty body",
			body: "",
			want: requests.FieldError{Loc: []string{"body"}, Msg: "Field required", Type: "missing"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var req dispatch.SingleRequest
			err := requests.Decode(strings.NewReader(tt.body), requests.Single, &req)
			verrs, ok := requests.AsValidationErrors(err)
			require.True(t, ok, "got %v", err)
			require.Len(t, verrs, 1)

			got := verrs[0]
			assert.Equal(t, tt.want.Loc, got.Loc)
			assert.Equal(t, tt.want.Type, got.Type)
			if tt.want.Msg != "" {
				assert.Equal(t, tt.want.Msg, got.Msg)
			}
		})
	}
}

func TestDecodeNested(t *testing.T) {
	t.Parallel()

	t.Run("bulk recipient index", func(t *testing.T) {
		t.Parallel()

		body := `{"recipients":["a@example.com","broken"],"subject":"Hi","contexts":[{}]}`
		var req dispatch.BulkRequest
		verrs, ok := requests.AsValidationErrors(requests.Decode(strings.NewReader(body), requests.Bulk, &req))
		require.True(t, ok)
		require.Len(t, verrs, 1)
		assert.Equal(t, []string{"body", "recipients", "1"}, verrs[0].Loc)
	})

	t.Run("sheet row missing body", func(t *testing.T) {
		t.Parallel()

		body := `{"emails":[{"email":"a@example.com","subject":"s","body":"b"},{"email":"b@example.com","subject":"s","name":null}]}`
		var req dispatch.SheetRequest
		verrs, ok := requests.AsValidationErrors(requests.Decode(strings.NewReader(body), requests.Sheet, &req))
		require.True(t, ok)
		require.Len(t, verrs, 1)
		assert.Equal(t, []string{"body", "emails", "1", "body"}, verrs[0].Loc)
		assert.Equal(t, "missing", verrs[0].Type)
	})

	t.Run("sheet accepts null name", func(t *testing.T) {
		t.Parallel()

		body := `{"emails":[{"email":"a@example.com","subject":"s","body":"b","name":null}]}`
		var req dispatch.SheetRequest
		require.NoError(t, requests.Decode(strings.NewReader(body), requests.Sheet, &req))
		require.Len(t, req.Rows, 1)
		assert.Empty(t, req.Rows[0].Name)
	})

	t.Run("personalized collects every error", func(t *testing.T) {
		t.Parallel()

		var req dispatch.PersonalizedRequest
		verrs, ok := requests.AsValidationErrors(requests.Decode(strings.NewReader(`{}`), requests.Personalized, &req))
		require.True(t, ok)
		assert.Len(t, verrs, 3)
		assert.Contains(t, verrs.Error(), "body.email_body: Field required")
	})
}

func TestDecodeTooLarge(t *testing.T) {
	t.Parallel()

	body := strings.NewReader(`{"recipient":"` + strings.Repeat("a", requests.MaxBodySize) + `"}`)
	var req dispatch.SingleRequest
	err := requests.Decode(body, requests.Single, &req)
	require.ErrorIs(t, err, requests.ErrBodyTooLarge)

	verrs, ok := requests.AsValidationErrors(err)
	require.True(t, ok)
	assert.Equal(t, "too_large", verrs[0].Type)
}

func TestAsValidationErrors(t *testing.T) {
	t.Parallel()

	_, ok := requests.AsValidationErrors(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, "single", requests.Single.Name())
}
