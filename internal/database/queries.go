package database

// Lead queries
const (
	InsertLeadQuery = `
		INSERT INTO leads (
			id, phone, name, source, stage_id, kanban_order, last_contacted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	SelectLeadByPhoneQuery = `
		SELECT id, phone, name, source, stage_id, kanban_order,
			   last_contacted_at, created_at, updated_at
		FROM leads
		WHERE phone = ?
	`

	TouchLeadContactQuery = `
		UPDATE leads
		SET last_contacted_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	SelectDefaultPipelineQuery = `
		SELECT id, name, is_default, created_at, updated_at
		FROM pipelines
		WHERE is_default = 1
		LIMIT 1
	`

	SelectFirstStageQuery = `
		SELECT id, pipeline_id, name, position, created_at
		FROM pipeline_stages
		WHERE pipeline_id = ?
		ORDER BY position
		LIMIT 1
	`

	SelectMaxKanbanOrderQuery = `
		SELECT COALESCE(MAX(kanban_order), -1)
		FROM leads
		WHERE stage_id = ?
	`
)

// Conversation queries
const (
	InsertConversationQuery = `
		INSERT INTO conversations (
			id, channel, number_id, connection_type, contact_phone,
			contact_name, external_chat_id, lead_id, status,
			unread_count, last_message_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectConversationByAPIKeyQuery = `
		SELECT id, channel, number_id, connection_type, contact_phone,
			   contact_name, external_chat_id, lead_id, status,
			   unread_count, last_message_at, created_at, updated_at
		FROM conversations
		WHERE channel = ? AND number_id = ? AND contact_phone = ?
		  AND connection_type = 'api'
	`

	SelectConversationByBridgeKeyQuery = `
		SELECT id, channel, number_id, connection_type, contact_phone,
			   contact_name, external_chat_id, lead_id, status,
			   unread_count, last_message_at, created_at, updated_at
		FROM conversations
		WHERE channel = ? AND number_id = ? AND connection_type = ?
		  AND external_chat_id = ? AND connection_type != 'api'
	`

	SelectConversationByIDQuery = `
		SELECT id, channel, number_id, connection_type, contact_phone,
			   contact_name, external_chat_id, lead_id, status,
			   unread_count, last_message_at, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	ApplyLiveInboundQuery = `
		UPDATE conversations
		SET unread_count = unread_count + 1,
			last_message_at = ?,
			status = 'active',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	MergeConversationTimestampQuery = `
		UPDATE conversations
		SET last_message_at = CASE
				WHEN last_message_at IS NULL OR last_message_at < ? THEN ?
				ELSE last_message_at
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	ResetUnreadQuery = `
		UPDATE conversations
		SET unread_count = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	UpdateConversationContactNameQuery = `
		UPDATE conversations
		SET contact_name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	ListConversationsQuery = `
		SELECT id, channel, number_id, connection_type, contact_phone,
			   contact_name, external_chat_id, lead_id, status,
			   unread_count, last_message_at, created_at, updated_at
		FROM conversations
		ORDER BY last_message_at IS NULL, last_message_at DESC
		LIMIT ? OFFSET ?
	`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			id, conversation_id, provider_message_id, connection_kind,
			direction, message_type, content, media_url, media_mime_type,
			latitude, longitude, status, sent_at, delivered_at, read_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectMessageByProviderIDQuery = `
		SELECT id, conversation_id, provider_message_id, connection_kind,
			   direction, message_type, content, media_url, media_mime_type,
			   latitude, longitude, status, sent_at, delivered_at, read_at,
			   created_at
		FROM messages
		WHERE provider_message_id = ? AND connection_kind = ?
	`

	UpdateMessageStatusSentQuery = `
		UPDATE messages
		SET status = ?, sent_at = ?
		WHERE id = ?
	`

	UpdateMessageStatusDeliveredQuery = `
		UPDATE messages
		SET status = ?, delivered_at = ?
		WHERE id = ?
	`

	UpdateMessageStatusReadQuery = `
		UPDATE messages
		SET status = ?, read_at = ?
		WHERE id = ?
	`

	UpdateMessageStatusFailedQuery = `
		UPDATE messages
		SET status = ?
		WHERE id = ?
	`

	ListMessagesByConversationQuery = `
		SELECT id, conversation_id, provider_message_id, connection_kind,
			   direction, message_type, content, media_url, media_mime_type,
			   latitude, longitude, status, sent_at, delivered_at, read_at,
			   created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	DeleteOldMessagesQuery = `
		DELETE FROM messages
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)

// Campaign queries
const (
	InsertCampaignQuery = `
		INSERT INTO campaigns (id, name) VALUES (?, ?)
	`

	SelectCampaignByIDQuery = `
		SELECT id, name, messages_sent, messages_delivered, messages_read,
			   messages_failed, created_at, updated_at
		FROM campaigns
		WHERE id = ?
	`

	InsertCampaignRecipientQuery = `
		INSERT INTO campaign_recipients (
			id, campaign_id, phone, whatsapp_message_id, status
		) VALUES (?, ?, ?, ?, ?)
	`

	SelectRecipientByMessageIDQuery = `
		SELECT id, campaign_id, phone, whatsapp_message_id, status, updated_at
		FROM campaign_recipients
		WHERE whatsapp_message_id = ?
	`

	UpdateRecipientStatusQuery = `
		UPDATE campaign_recipients
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	IncrementCampaignSentQuery = `
		UPDATE campaigns
		SET messages_sent = messages_sent + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	IncrementCampaignDeliveredQuery = `
		UPDATE campaigns
		SET messages_delivered = messages_delivered + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	IncrementCampaignReadQuery = `
		UPDATE campaigns
		SET messages_read = messages_read + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	IncrementCampaignFailedQuery = `
		UPDATE campaigns
		SET messages_failed = messages_failed + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	CountStaleRecipientsQuery = `
		SELECT COUNT(*)
		FROM campaign_recipients
		WHERE status IN ('pending', 'sent')
		  AND updated_at < datetime('now', '-' || ? || ' minutes')
	`
)

// Contact queries
const (
	InsertOrReplaceContactQuery = `
		INSERT OR REPLACE INTO contacts (
			phone, display_name, push_name, number_id, cached_at
		) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	SelectContactByPhoneQuery = `
		SELECT phone, display_name, push_name, number_id, cached_at
		FROM contacts
		WHERE phone = ?
	`

	DeleteOldContactsQuery = `
		DELETE FROM contacts
		WHERE cached_at < datetime('now', '-' || ? || ' days')
	`
)
