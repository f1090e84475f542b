package digit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    Response
		wantErr string
	}{
		{"no carry", Request{NumberA: 3, NumberB: 4}, Response{Result: 7}, ""},
		{"carry out", Request{NumberA: 8, NumberB: 5}, Response{Result: 3, CarryOut: 1}, ""},
		{"carry in and out", Request{NumberA: 9, NumberB: 9, CarryIn: 1}, Response{Result: 9, CarryOut: 1}, ""},
		{"carry in only", Request{NumberA: 4, NumberB: 5, CarryIn: 1}, Response{Result: 0, CarryOut: 1}, ""},
		{"a too big", Request{NumberA: 10}, Response{}, "NumberA"},
		{"b negative", Request{NumberB: -1}, Response{}, "NumberB"},
		{"carry 2", Request{CarryIn: 2}, Response{}, "CarryIn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Add(tt.req)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandler(t *testing.T) {
	h := NewHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/suma", strings.NewReader(`{"NumberA":7,"NumberB":6,"CarryIn":1}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Result":4,"CarryOut":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/suma", strings.NewReader(`{"NumberA":12}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/suma", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/suma", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClient(t *testing.T) {
	srv := httptest.NewServer(NewHandler())
	defer srv.Close()
	c := NewClient(time.Second)

	resp, err := c.Add(context.Background(), srv.URL+"/", Request{NumberA: 5, NumberB: 5})
	require.NoError(t, err)
	assert.Equal(t, Response{Result: 0, CarryOut: 1}, resp)

	_, err = c.Add(context.Background(), srv.URL, Request{NumberA: 11})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.False(t, se.Temporary())
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(time.Second).Add(context.Background(), srv.URL, Request{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
	assert.Equal(t, "overloaded", se.Body)
}
