package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

func TestConversationService_StartAndNotify(t *testing.T) {
	env := newTestEnv(t, "testdb_conversations")
	ctx := context.Background()
	owner := env.register(t, "seljandi")
	buyer := env.register(t, "kaupandi")
	ad := env.ad(t, owner, "Sófi")

	_, _, err := env.conversations.Start(ctx, owner, ad.ID, &validation.MessageInput{Body: "Hæ"})
	assert.ErrorIs(t, err, ErrForbidden, "owners cannot contact themselves")

	conv, msg, err := env.conversations.Start(ctx, buyer, ad.ID, &validation.MessageInput{Body: "  Er sófinn laus?  "})
	require.NoError(t, err)
	assert.Equal(t, models.ConversationOpen, conv.Status)
	assert.Equal(t, owner.ID, conv.OwnerID)
	assert.Equal(t, "Er sófinn laus?", msg.Body)

	time.Sleep(5 * time.Millisecond)
	again, _, err := env.conversations.Start(ctx, buyer, ad.ID, &validation.MessageInput{Body: "Halló?"})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID, "the existing conversation is reused")

	inbox, _, err := env.notifications.List(ctx, owner, true, 10, "")
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	n := inbox[1]
	assert.Equal(t, models.NotificationKindNewMessage, n.Kind)
	assert.Equal(t, `New message about "Sófi"`, n.Data.Title)
	assert.Equal(t, "Kaupandi", n.Data.FromName)
	assert.Equal(t, "/conversations/"+conv.ID.String()+"#message-"+msg.ID.String(), n.Data.URL)

	count, err := env.notifications.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	read, err := env.notifications.MarkRead(ctx, owner, n.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)
	_, err = env.notifications.MarkRead(ctx, buyer, n.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	marked, err := env.notifications.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
}

func TestConversationService_MessagesPreferenceAndStatus(t *testing.T) {
	env := newTestEnv(t, "testdb_conversation_status")
	ctx := context.Background()
	owner := env.register(t, "seljandi")
	buyer := env.register(t, "kaupandi")
	stranger := env.register(t, "okunnugur")
	ad := env.ad(t, owner, "Lampi")

	off, on := false, true
	_, err := env.users.UpdateNotificationPreferences(ctx, buyer, &validation.NotificationPreferencesInput{
		Messages: &off, Deals: &on, Reviews: &on, AdExpiry: &on, Newsletter: &on,
	})
	require.NoError(t, err)

	conv, _, err := env.conversations.Start(ctx, buyer, ad.ID, &validation.MessageInput{Body: "Hæ"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = env.conversations.SendMessage(ctx, owner, conv.ID, &validation.MessageInput{Body: strings.Repeat("á", 200)})
	require.NoError(t, err)
	count, err := env.notifications.UnreadCount(ctx, buyer)
	require.NoError(t, err)
	assert.Zero(t, count, "buyer opted out of message notifications")

	msgs, _, err := env.conversations.Messages(ctx, buyer, conv.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, buyer.ID, msgs[0].SenderID)

	_, err = env.conversations.Find(ctx, stranger, conv.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.conversations.SendMessage(ctx, stranger, conv.ID, &validation.MessageInput{Body: "Hæ"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.conversations.SendMessage(ctx, owner, conv.ID, &validation.MessageInput{Body: "   "})
	_, ok := validation.AsErrors(err)
	assert.True(t, ok)

	closed, err := env.conversations.UpdateStatus(ctx, owner, conv.ID, &validation.ConversationStatusInput{Status: "closed"})
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, closed.Status)
	_, err = env.conversations.SendMessage(ctx, buyer, conv.ID, &validation.MessageInput{Body: "Hæ aftur"})
	assert.ErrorIs(t, err, ErrForbidden, "closed conversations refuse new messages")

	archived, err := env.conversations.Archive(ctx, buyer, conv.ID, true)
	require.NoError(t, err)
	assert.True(t, archived.ArchivedByMember)
	assert.False(t, archived.ArchivedByOwner)
	active, _, err := env.conversations.List(ctx, buyer, false, 10, "")
	require.NoError(t, err)
	assert.Empty(t, active)
	inArchive, _, err := env.conversations.List(ctx, buyer, true, 10, "")
	require.NoError(t, err)
	assert.Len(t, inArchive, 1)

	admin := env.admin(t, "admin")
	_, err = env.conversations.Find(ctx, admin, conv.ID)
	require.NoError(t, err)
	_, err = env.conversations.Archive(ctx, admin, conv.ID, true)
	assert.ErrorIs(t, err, ErrForbidden)
}
