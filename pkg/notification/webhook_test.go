package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverable(t *testing.T) {
	assert.True(t, Deliverable("http://requester:8080/notify"))
	assert.True(t, Deliverable(" https://requester/notify "))
	assert.False(t, Deliverable(" "))
	assert.False(t, Deliverable(""))
	assert.False(t, Deliverable("ftp://requester/notify"))
	assert.False(t, Deliverable("requester/notify"))
}

func TestSend(t *testing.T) {
	var got WorkOrderNotification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier()
	err := n.Send(context.Background(), server.URL, &WorkOrderNotification{WorkOrderID: "aa01", Status: "SUCCESS"})
	require.NoError(t, err)
	assert.Equal(t, "aa01", got.WorkOrderID)
	assert.Equal(t, "SUCCESS", got.Status)
}

func TestSend_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier()
	assert.Error(t, n.Send(context.Background(), server.URL, &WorkOrderNotification{WorkOrderID: "aa01"}))
	assert.NoError(t, n.Send(context.Background(), " ", &WorkOrderNotification{WorkOrderID: "aa01"}))
}
