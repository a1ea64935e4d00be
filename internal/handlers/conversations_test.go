package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser("u1"))
	r.GET("/conversations", handler.ListConversations)
	r.GET("/conversations/:id/messages", handler.GetMessages)
	r.POST("/conversations/groups", handler.CreateGroup)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	store := new(mocks.ConversationStoreMock)
	router := setupConversationRouter(NewConversationHandler(store, nil))

	last := "Hello"
	store.On("ListForUser", mock.Anything, "u1").Return([]models.ConversationSummary{{
		Conversation: models.Conversation{ID: "c1", Participants: []string{"u1", "u2"}, Type: models.ConversationDirect},
		LastMessage:  &last,
		UnreadCount:  2,
	}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, 2, resp.Conversations[0].UnreadCount)
	store.AssertExpectations(t)
}

func TestListConversationsEmptyIsArray(t *testing.T) {
	store := new(mocks.ConversationStoreMock)
	router := setupConversationRouter(NewConversationHandler(store, nil))
	store.On("ListForUser", mock.Anything, "u1").Return(nil, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversations":[]}`, rec.Body.String())
}

func TestListConversationsStoreError(t *testing.T) {
	store := new(mocks.ConversationStoreMock)
	router := setupConversationRouter(NewConversationHandler(store, nil))
	store.On("ListForUser", mock.Anything, "u1").Return(nil, assert.AnError).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	store.AssertExpectations(t)
}

func TestGetMessagesSuccess(t *testing.T) {
	store := new(mocks.ConversationStoreMock)
	router := setupConversationRouter(NewConversationHandler(store, nil))

	body := "Hello"
	conv := models.Conversation{ID: "c1", Participants: []string{"u1", "u2"}, Type: models.ConversationDirect}
	store.On("GetHistory", mock.Anything, "c1", "u1").Return(conv, []models.Message{{
		ID: "m1", ConversationID: "c1", SenderID: "u2", Body: &body, Kind: models.MessageText,
		SentAt: time.Now(), ReadBy: []string{"u2"},
	}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.MessagesList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "c1", resp.Conversation.ID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "Hello", *resp.Messages[0].Body)
	store.AssertExpectations(t)
}

func TestGetMessagesNotFoundForOutsider(t *testing.T) {
	store := new(mocks.ConversationStoreMock)
	router := setupConversationRouter(NewConversationHandler(store, nil))
	store.On("GetHistory", mock.Anything, "c9", "u1").Return(nil, nil, repositories.ErrConversationNotFound).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c9/messages", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "messages")
}

func TestCreateGroup(t *testing.T) {
	store := new(mocks.ConversationStoreMock)
	pub := new(mocks.PublisherMock)
	router := setupConversationRouter(NewConversationHandler(store, newTestAudit(pub)))

	store.On("CreateGroup", mock.Anything, "u1", "Buyers", []string{"u2", "u3"}).
		Return(models.Conversation{ID: "g1", Participants: []string{"u1", "u2", "u3"}, Type: models.ConversationGroup, Name: "Buyers"}, nil).Once()
	pub.On("Publish", mock.Anything, "audit.messaging", mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/groups", bytes.NewBufferString(`{"name":"Buyers","participantIds":["u2","u3"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	store.AssertExpectations(t)
	pub.AssertExpectations(t)

	records := pub.Published("audit.messaging")
	require.Len(t, records, 1)
	env := records[0].(telemetry.AuditEnvelope)
	assert.Equal(t, "conversation.group_create", env.Payload.Action)
	assert.Equal(t, "u1", env.UserID)
	assert.NotEmpty(t, env.RequestID)
}

func TestCreateGroupValidation(t *testing.T) {
	store := new(mocks.ConversationStoreMock)
	router := setupConversationRouter(NewConversationHandler(store, nil))
	store.On("CreateGroup", mock.Anything, "u1", "Solo", []string{"u1"}).
		Return(nil, repositories.ErrInvalidParticipants).Once()

	for _, body := range []string{`{}`, `{"name":"x"}`, `{"name":"  ","participantIds":["u2"]}`, `{"name":"Solo","participantIds":["u1"]}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/groups", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	store.AssertExpectations(t)
}
