// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jeranaias/gatewayz-core/internal/authflow"
	"github.com/jeranaias/gatewayz-core/internal/model"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:   srv.URL,
		Keys:      authflow.KeyStoreFunc(func() (string, bool) { return "test-key", true }),
		RateLimit: rate.Limit(-1), // no limiting in tests
		Logger:    log.New(&bytes.Buffer{}, "", 0),
	})
}

// =============================================================================
// SAVE MESSAGES TESTS
// =============================================================================

func TestSaveMessages_OrderAndAuthPreserved(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody saveMessagesRequest

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	msgs := []model.Message{
		model.NewMessage("s1", model.RoleAssistant, "first"),
		model.NewMessage("s1", model.RoleAssistant, "second"),
		model.NewMessage("s1", model.RoleAssistant, "third"),
	}
	require.NoError(t, c.SaveMessages(context.Background(), "s1", msgs))

	require.Equal(t, "/v1/chat/sessions/s1/messages", gotPath)
	require.Equal(t, "Bearer test-key", gotAuth)
	require.Len(t, gotBody.Messages, 3)
	for i, wm := range gotBody.Messages {
		require.Equal(t, msgs[i].ID, wm.ID, "wire order must equal insertion order")
		require.Equal(t, msgs[i].Content, wm.Content)
	}
}

func TestSaveMessages_EmptyIsNoop(t *testing.T) {
	var calls int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	require.NoError(t, c.SaveMessages(context.Background(), "s1", nil))
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

// =============================================================================
// RETRY BEHAVIOR TESTS
// =============================================================================

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	msgs := []model.Message{model.NewMessage("s1", model.RoleAssistant, "x")}
	require.NoError(t, c.SaveMessages(context.Background(), "s1", msgs))
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDo_AuthFailureNotRetried(t *testing.T) {
	var calls int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":{"message":"token expired"}}`, http.StatusUnauthorized)
	}))

	msgs := []model.Message{model.NewMessage("s1", model.RoleAssistant, "x")}
	err := c.SaveMessages(context.Background(), "s1", msgs)

	require.ErrorIs(t, err, ErrAuthFailed)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "401 must not be retried by the persistence client")
}

func TestDo_NotFoundMapped(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "{}", http.StatusNotFound)
	}))

	err := c.UpdateSession(context.Background(), "ghost", model.SessionPatch{Title: strPtr("x")})
	require.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// UPDATE SESSION TESTS
// =============================================================================

func TestUpdateSession_SendsPatch(t *testing.T) {
	var gotMethod, gotPath string
	var gotPatch model.SessionPatch

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPatch))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.UpdateSession(context.Background(), "s1", model.SessionPatch{Title: strPtr("Renamed")}))

	require.Equal(t, http.MethodPatch, gotMethod)
	require.Equal(t, "/v1/chat/sessions/s1", gotPath)
	require.NotNil(t, gotPatch.Title)
	require.Equal(t, "Renamed", *gotPatch.Title)
	require.Nil(t, gotPatch.Model, "unset fields must stay nil on the wire")
}

func TestUpdateSession_EmptyPatchIsNoop(t *testing.T) {
	var calls int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	require.NoError(t, c.UpdateSession(context.Background(), "s1", model.SessionPatch{}))
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func strPtr(s string) *string { return &s }
