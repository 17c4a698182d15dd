package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arkivo-id/wa-meter/internal/apperrors"
	"github.com/arkivo-id/wa-meter/internal/config"
	"github.com/arkivo-id/wa-meter/internal/model"
	storagemock "github.com/arkivo-id/wa-meter/internal/storage/mock"
	"github.com/arkivo-id/wa-meter/internal/usecase"
	"github.com/arkivo-id/wa-meter/pkg/logger"
)

const testVerifyToken = "verify-token-1"

func newTestServer(t *testing.T) (*Server, *storagemock.MetadataStoreMock) {
	return newTestServerWithPool(t, 2)
}

func newTestServerWithPool(t *testing.T, poolSize int) (*Server, *storagemock.MetadataStoreMock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	cfg := &config.Config{}
	cfg.Environment = "test"
	cfg.WhatsApp.MyPhone = "15551234567"
	cfg.WhatsApp.VerifyToken = testVerifyToken
	cfg.Ingest.PoolSize = poolSize
	cfg.Ingest.ChatLabel = "Imported Chat"

	store := new(storagemock.MetadataStoreMock)
	svc, err := usecase.NewIngestService(cfg, store, logger.Log)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	return NewServer(cfg, svc, logger.Log), store
}

func TestHandleVerify_CorrectToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=ch-123", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ch-123", w.Body.String())
}

func TestHandleVerify_WrongToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=ch-123", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// Delivery is acknowledged with 200 regardless of payload validity; the body
// is processed after the response.
func TestHandleWebhook_AcknowledgesImmediately(t *testing.T) {
	srv, store := newTestServer(t)

	done := make(chan struct{})
	store.On("SaveRecord", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { close(done) }).
		Return(nil).Once()

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{` +
		`"metadata":{"display_phone_number":"15551234567"},` +
		`"messages":[{"id":"wamid.http-1","from":"628111","timestamp":"1700000000"}]}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event was never processed")
	}
}

// A delivery arriving while the only worker is parked inside persistence must
// still be answered immediately; the ack never waits on in-flight processing.
func TestHandleWebhook_AckNotDelayedByBusyWorkers(t *testing.T) {
	srv, store := newTestServerWithPool(t, 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	store.On("SaveRecord", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil).Once()

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{` +
		`"metadata":{"display_phone_number":"15551234567"},` +
		`"messages":[{"id":"wamid.busy-1","from":"628111","timestamp":"1700000000"}]}}]}]}`

	first := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w1 := httptest.NewRecorder()
	srv.engine.ServeHTTP(w1, first)
	require.Equal(t, http.StatusOK, w1.Code)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first delivery never reached the store")
	}

	answered := make(chan int, 1)
	go func() {
		second := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		w2 := httptest.NewRecorder()
		srv.engine.ServeHTTP(w2, second)
		answered <- w2.Code
	}()

	select {
	case code := <-answered:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("second delivery's ack waited on in-flight persistence")
	}
}

func TestHandleWebhook_GarbageBodyStillAcknowledged(t *testing.T) {
	srv, store := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertNotCalled(t, "SaveRecord", mock.Anything, mock.Anything)
}

func TestHandleImport(t *testing.T) {
	srv, store := newTestServer(t)

	store.On("BulkSaveRecords", mock.Anything, mock.MatchedBy(func(recs []model.MessageRecord) bool {
		return len(recs) == 1 && recs[0].ChatID == "Holiday"
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/import",
		strings.NewReader("13/05/2023, 10:00 - Alice: hi\n"))
	req.Header.Set("X-Chat-Name", "Holiday")
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"imported":1`)
	store.AssertExpectations(t)
}

func TestHandleImport_DefaultChatLabel(t *testing.T) {
	srv, store := newTestServer(t)

	store.On("BulkSaveRecords", mock.Anything, mock.MatchedBy(func(recs []model.MessageRecord) bool {
		return len(recs) == 1 && recs[0].ChatID == "Imported Chat"
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/import",
		strings.NewReader("13/05/2023, 10:00 - Alice: hi\n"))
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleImport_UnparseableTranscript(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import",
		strings.NewReader("no message headers anywhere\n"))
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMessages_MasksOutgoingSender(t *testing.T) {
	srv, store := newTestServer(t)

	store.On("QueryMessages", mock.Anything, model.MessageFilter{ChatID: "628111"}).
		Return([]model.MessageMetadata{
			{Timestamp: 1700000000, SenderName: "Alice", Direction: model.DirectionIn, ChatID: "628111"},
			{Timestamp: 1700000100, SenderName: "15551234567", Direction: model.DirectionOut, ChatID: "628111"},
		}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/messages?chat=628111", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sender":"Alice"`)
	assert.Contains(t, w.Body.String(), `"sender":"Me"`)
	assert.Contains(t, w.Body.String(), `"myPhone":"15551234567"`)
}

func TestHandleMessages_TimestampFilter(t *testing.T) {
	srv, store := newTestServer(t)

	store.On("QueryMessages", mock.Anything, model.MessageFilter{From: 1690000000, To: 1700000000}).
		Return([]model.MessageMetadata{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/messages?from=1690000000&to=1700000000", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestHandleChats(t *testing.T) {
	srv, store := newTestServer(t)

	store.On("ChatSummaries", mock.Anything).
		Return([]model.ChatSummary{{ChatID: "628111", MsgCount: 3, FirstMsg: 1, LastMsg: 9}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"msg_count":3`)
}

func TestHandleStats_StoreError(t *testing.T) {
	srv, store := newTestServer(t)

	store.On("Stats", mock.Anything).Return(nil, apperrors.ErrDatabase).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleWebhookStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	// Flip the verified flag through the handshake first.
	verify := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=x", nil)
	srv.engine.ServeHTTP(httptest.NewRecorder(), verify)

	req := httptest.NewRequest(http.MethodGet, "/api/webhook-status", nil)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verified":true`)
	assert.Contains(t, w.Body.String(), `"firstMessage":false`)
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		srv.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
