package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"whatscrm/internal/migrations"
	"whatscrm/internal/models"
	"whatscrm/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *fieldCipher
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.RunMigrations(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	encryptor, err := newFieldCipher()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// IsUniqueConstraint reports whether err is a SQLite unique constraint
// violation. Callers use it to turn insert races into no-ops.
func IsUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// Lead operations

func (d *Database) CreateLead(ctx context.Context, lead *models.Lead) error {
	encryptedPhone, err := d.encryptor.EncryptLookupField(lead.Phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone: %w", err)
	}

	encryptedName, err := d.encryptor.EncryptField(lead.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt name: %w", err)
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertLeadQuery,
			lead.ID, encryptedPhone, encryptedName, lead.Source,
			lead.StageID, lead.KanbanOrder, lead.LastContactedAt)
		if err != nil {
			return fmt.Errorf("failed to create lead: %w", err)
		}
		return nil
	}, "create lead")
}

func (d *Database) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	encryptedPhone, err := d.encryptor.EncryptLookupField(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	var (
		lead            models.Lead
		encPhone        string
		encName         string
		stageID         sql.NullString
		lastContactedAt sql.NullTime
	)

	err = d.db.QueryRowContext(ctx, SelectLeadByPhoneQuery, encryptedPhone).Scan(
		&lead.ID, &encPhone, &encName, &lead.Source,
		&stageID, &lead.KanbanOrder, &lastContactedAt,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	lead.Phone, err = d.encryptor.DecryptField(encPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}
	lead.Name, err = d.encryptor.DecryptField(encName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt name: %w", err)
	}
	if stageID.Valid {
		lead.StageID = &stageID.String
	}
	if lastContactedAt.Valid {
		t := lastContactedAt.Time
		lead.LastContactedAt = &t
	}

	return &lead, nil
}

func (d *Database) TouchLeadContact(ctx context.Context, leadID string, at time.Time) error {
	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, TouchLeadContactQuery, at, leadID)
		if err != nil {
			return fmt.Errorf("failed to touch lead contact: %w", err)
		}
		return nil
	}, "touch lead contact")
}

func (d *Database) GetDefaultPipeline(ctx context.Context) (*models.Pipeline, error) {
	var p models.Pipeline
	err := d.db.QueryRowContext(ctx, SelectDefaultPipelineQuery).Scan(
		&p.ID, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default pipeline: %w", err)
	}
	return &p, nil
}

func (d *Database) GetFirstStage(ctx context.Context, pipelineID string) (*models.PipelineStage, error) {
	var s models.PipelineStage
	err := d.db.QueryRowContext(ctx, SelectFirstStageQuery, pipelineID).Scan(
		&s.ID, &s.PipelineID, &s.Name, &s.Position, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first stage: %w", err)
	}
	return &s, nil
}

// GetMaxKanbanOrder returns the highest kanban order within a stage, or
// -1 when the stage has no leads.
func (d *Database) GetMaxKanbanOrder(ctx context.Context, stageID string) (int, error) {
	var maxOrder int
	err := d.db.QueryRowContext(ctx, SelectMaxKanbanOrderQuery, stageID).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("failed to get max kanban order: %w", err)
	}
	return maxOrder, nil
}

// Conversation operations

func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	encryptedPhone, err := d.encryptor.EncryptLookupField(conv.ContactPhone)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact phone: %w", err)
	}

	encryptedName, err := d.encryptor.EncryptField(conv.ContactName)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact name: %w", err)
	}

	encryptedChatID, err := d.encryptor.EncryptLookupField(conv.ExternalChatID)
	if err != nil {
		return fmt.Errorf("failed to encrypt external chat ID: %w", err)
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertConversationQuery,
			conv.ID, conv.Channel, conv.NumberID, conv.ConnectionType,
			encryptedPhone, encryptedName, encryptedChatID, conv.LeadID,
			conv.Status, conv.UnreadCount, conv.LastMessageAt)
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		return nil
	}, "create conversation")
}

func (d *Database) GetConversationByAPIKey(ctx context.Context, channel, numberID, contactPhone string) (*models.Conversation, error) {
	encryptedPhone, err := d.encryptor.EncryptLookupField(contactPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt contact phone: %w", err)
	}

	row := d.db.QueryRowContext(ctx, SelectConversationByAPIKeyQuery, channel, numberID, encryptedPhone)
	return d.scanConversation(row)
}

func (d *Database) GetConversationByBridgeKey(ctx context.Context, channel, numberID, connectionType, externalChatID string) (*models.Conversation, error) {
	encryptedChatID, err := d.encryptor.EncryptLookupField(externalChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt external chat ID: %w", err)
	}

	row := d.db.QueryRowContext(ctx, SelectConversationByBridgeKeyQuery, channel, numberID, connectionType, encryptedChatID)
	return d.scanConversation(row)
}

func (d *Database) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, SelectConversationByIDQuery, id)
	return d.scanConversation(row)
}

// ApplyLiveInbound counts one unread message, stamps the thread with
// the given arrival time, and revives it if it was archived. The
// unread increment happens in SQL so concurrent events never lose
// counts to read-modify-write races.
func (d *Database) ApplyLiveInbound(ctx context.Context, conversationID string, at time.Time) error {
	return d.execConversationUpdate(ctx, ApplyLiveInboundQuery, "apply live inbound", at, conversationID)
}

// MergeConversationTimestamp advances last_message_at to the given time
// only if it is newer than the stored value. Backfilled history never
// moves a thread backwards.
func (d *Database) MergeConversationTimestamp(ctx context.Context, conversationID string, at time.Time) error {
	return d.execConversationUpdate(ctx, MergeConversationTimestampQuery, "merge conversation timestamp", at, at, conversationID)
}

func (d *Database) ResetUnread(ctx context.Context, conversationID string) error {
	return d.execConversationUpdate(ctx, ResetUnreadQuery, "reset unread", conversationID)
}

func (d *Database) UpdateConversationContactName(ctx context.Context, conversationID, name string) error {
	encryptedName, err := d.encryptor.EncryptField(name)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact name: %w", err)
	}
	return d.execConversationUpdate(ctx, UpdateConversationContactNameQuery, "update contact name", encryptedName, conversationID)
}

func (d *Database) execConversationUpdate(ctx context.Context, query, operation string, args ...interface{}) error {
	return withRetry(ctx, func() error {
		result, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to %s: %w", operation, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%s: no conversation found", operation)
		}
		return nil
	}, operation)
}

func (d *Database) ListConversations(ctx context.Context, limit, offset int) ([]models.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, ListConversationsQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := d.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}

func (d *Database) scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		conv          models.Conversation
		encPhone      string
		encName       string
		encChatID     string
		leadID        sql.NullString
		lastMessageAt sql.NullTime
	)

	err := row.Scan(
		&conv.ID, &conv.Channel, &conv.NumberID, &conv.ConnectionType,
		&encPhone, &encName, &encChatID, &leadID, &conv.Status,
		&conv.UnreadCount, &lastMessageAt, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	conv.ContactPhone, err = d.encryptor.DecryptField(encPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt contact phone: %w", err)
	}
	conv.ContactName, err = d.encryptor.DecryptField(encName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt contact name: %w", err)
	}
	conv.ExternalChatID, err = d.encryptor.DecryptField(encChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt external chat ID: %w", err)
	}
	if leadID.Valid {
		conv.LeadID = &leadID.String
	}
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		conv.LastMessageAt = &t
	}

	return &conv, nil
}

// Message operations

func (d *Database) CreateMessage(ctx context.Context, msg *models.Message) error {
	encryptedProviderID, err := d.encryptor.EncryptLookupField(msg.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("failed to encrypt provider message ID: %w", err)
	}

	encryptedContent, err := d.encryptor.EncryptField(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}

	encryptedMediaURL, err := d.encryptor.EncryptField(msg.MediaURL)
	if err != nil {
		return fmt.Errorf("failed to encrypt media URL: %w", err)
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertMessageQuery,
			msg.ID, msg.ConversationID, encryptedProviderID, msg.ConnectionKind,
			msg.Direction, msg.Type, encryptedContent, encryptedMediaURL,
			msg.MediaMimeType, msg.Latitude, msg.Longitude, msg.Status,
			msg.SentAt, msg.DeliveredAt, msg.ReadAt)
		if err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		return nil
	}, "create message")
}

func (d *Database) GetMessageByProviderID(ctx context.Context, providerMessageID string, kind models.ConnectionKind) (*models.Message, error) {
	encryptedProviderID, err := d.encryptor.EncryptLookupField(providerMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt provider message ID: %w", err)
	}

	row := d.db.QueryRowContext(ctx, SelectMessageByProviderIDQuery, encryptedProviderID, kind)
	return d.scanMessage(row)
}

func (d *Database) UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus, at time.Time) error {
	var query string
	switch status {
	case models.DeliveryStatusSent:
		query = UpdateMessageStatusSentQuery
	case models.DeliveryStatusDelivered:
		query = UpdateMessageStatusDeliveredQuery
	case models.DeliveryStatusRead:
		query = UpdateMessageStatusReadQuery
	case models.DeliveryStatusFailed:
		query = UpdateMessageStatusFailedQuery
	default:
		return fmt.Errorf("unsupported delivery status: %s", status)
	}

	return withRetry(ctx, func() error {
		var (
			result sql.Result
			err    error
		)
		if status == models.DeliveryStatusFailed {
			result, err = d.db.ExecContext(ctx, query, status, messageID)
		} else {
			result, err = d.db.ExecContext(ctx, query, status, at, messageID)
		}
		if err != nil {
			return fmt.Errorf("failed to update message status: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("no message found with ID: %s", messageID)
		}
		return nil
	}, "update message status")
}

func (d *Database) ListMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, ListMessagesByConversationQuery, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

func (d *Database) scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg           models.Message
		encProviderID string
		encContent    string
		encMediaURL   sql.NullString
		mediaMimeType sql.NullString
		latitude      sql.NullFloat64
		longitude     sql.NullFloat64
		sentAt        sql.NullTime
		deliveredAt   sql.NullTime
		readAt        sql.NullTime
	)

	err := row.Scan(
		&msg.ID, &msg.ConversationID, &encProviderID, &msg.ConnectionKind,
		&msg.Direction, &msg.Type, &encContent, &encMediaURL, &mediaMimeType,
		&latitude, &longitude, &msg.Status, &sentAt, &deliveredAt, &readAt,
		&msg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.ProviderMessageID, err = d.encryptor.DecryptField(encProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt provider message ID: %w", err)
	}
	msg.Content, err = d.encryptor.DecryptField(encContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	if encMediaURL.Valid {
		msg.MediaURL, err = d.encryptor.DecryptField(encMediaURL.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt media URL: %w", err)
		}
	}
	if mediaMimeType.Valid {
		msg.MediaMimeType = mediaMimeType.String
	}
	if latitude.Valid {
		v := latitude.Float64
		msg.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		msg.Longitude = &v
	}
	if sentAt.Valid {
		t := sentAt.Time
		msg.SentAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		msg.DeliveredAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}

	return &msg, nil
}

// Campaign operations

func (d *Database) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertCampaignQuery, campaign.ID, campaign.Name)
		if err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}
		return nil
	}, "create campaign")
}

func (d *Database) GetCampaignByID(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	err := d.db.QueryRowContext(ctx, SelectCampaignByIDQuery, id).Scan(
		&c.ID, &c.Name, &c.MessagesSent, &c.MessagesDelivered,
		&c.MessagesRead, &c.MessagesFailed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (d *Database) CreateCampaignRecipient(ctx context.Context, recipient *models.CampaignRecipient) error {
	encryptedPhone, err := d.encryptor.EncryptField(recipient.Phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone: %w", err)
	}

	encryptedMessageID, err := d.encryptor.EncryptLookupField(recipient.WhatsAppMessageID)
	if err != nil {
		return fmt.Errorf("failed to encrypt message ID: %w", err)
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertCampaignRecipientQuery,
			recipient.ID, recipient.CampaignID, encryptedPhone,
			encryptedMessageID, recipient.Status)
		if err != nil {
			return fmt.Errorf("failed to create campaign recipient: %w", err)
		}
		return nil
	}, "create campaign recipient")
}

func (d *Database) GetRecipientByMessageID(ctx context.Context, whatsappMessageID string) (*models.CampaignRecipient, error) {
	encryptedMessageID, err := d.encryptor.EncryptLookupField(whatsappMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message ID: %w", err)
	}

	var (
		r            models.CampaignRecipient
		encPhone     string
		encMessageID string
	)

	err = d.db.QueryRowContext(ctx, SelectRecipientByMessageIDQuery, encryptedMessageID).Scan(
		&r.ID, &r.CampaignID, &encPhone, &encMessageID, &r.Status, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign recipient: %w", err)
	}

	r.Phone, err = d.encryptor.DecryptField(encPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}
	r.WhatsAppMessageID, err = d.encryptor.DecryptField(encMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message ID: %w", err)
	}

	return &r, nil
}

func (d *Database) UpdateRecipientStatus(ctx context.Context, recipientID string, status models.DeliveryStatus) error {
	return withRetry(ctx, func() error {
		result, err := d.db.ExecContext(ctx, UpdateRecipientStatusQuery, status, recipientID)
		if err != nil {
			return fmt.Errorf("failed to update recipient status: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("no recipient found with ID: %s", recipientID)
		}
		return nil
	}, "update recipient status")
}

// Campaign counters move by SQL increments so concurrent receipts for
// different recipients of the same campaign never lose updates.

func (d *Database) IncrementCampaignSent(ctx context.Context, campaignID string) error {
	return d.incrementCampaignCounter(ctx, IncrementCampaignSentQuery, "increment campaign sent", campaignID)
}

func (d *Database) IncrementCampaignDelivered(ctx context.Context, campaignID string) error {
	return d.incrementCampaignCounter(ctx, IncrementCampaignDeliveredQuery, "increment campaign delivered", campaignID)
}

func (d *Database) IncrementCampaignRead(ctx context.Context, campaignID string) error {
	return d.incrementCampaignCounter(ctx, IncrementCampaignReadQuery, "increment campaign read", campaignID)
}

func (d *Database) IncrementCampaignFailed(ctx context.Context, campaignID string) error {
	return d.incrementCampaignCounter(ctx, IncrementCampaignFailedQuery, "increment campaign failed", campaignID)
}

func (d *Database) incrementCampaignCounter(ctx context.Context, query, operation, campaignID string) error {
	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query, campaignID)
		if err != nil {
			return fmt.Errorf("failed to %s: %w", operation, err)
		}
		return nil
	}, operation)
}

// CountStaleRecipients counts campaign recipients that have sat in
// pending or sent for longer than the given number of minutes.
func (d *Database) CountStaleRecipients(ctx context.Context, olderThanMinutes int) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, CountStaleRecipientsQuery, olderThanMinutes).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale recipients: %w", err)
	}
	return count, nil
}

// Contact operations

// SaveDirectoryContact saves or refreshes a cached contact name.
func (d *Database) SaveDirectoryContact(ctx context.Context, contact *models.DirectoryContact) error {
	encryptedPhone, err := d.encryptor.EncryptLookupField(contact.Phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone: %w", err)
	}

	encryptedDisplayName, err := d.encryptor.EncryptField(contact.DisplayName)
	if err != nil {
		return fmt.Errorf("failed to encrypt display name: %w", err)
	}

	encryptedPushName, err := d.encryptor.EncryptField(contact.PushName)
	if err != nil {
		return fmt.Errorf("failed to encrypt push name: %w", err)
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertOrReplaceContactQuery,
			encryptedPhone, encryptedDisplayName, encryptedPushName, contact.NumberID)
		if err != nil {
			return fmt.Errorf("failed to save contact: %w", err)
		}
		return nil
	}, "save contact")
}

// GetDirectoryContact retrieves a cached contact by phone number.
func (d *Database) GetDirectoryContact(ctx context.Context, phone string) (*models.DirectoryContact, error) {
	encryptedPhone, err := d.encryptor.EncryptLookupField(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	var (
		contact        models.DirectoryContact
		encPhone       string
		encDisplayName string
		encPushName    string
	)

	err = d.db.QueryRowContext(ctx, SelectContactByPhoneQuery, encryptedPhone).Scan(
		&encPhone, &encDisplayName, &encPushName, &contact.NumberID, &contact.CachedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	contact.Phone, err = d.encryptor.DecryptField(encPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}
	contact.DisplayName, err = d.encryptor.DecryptField(encDisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt display name: %w", err)
	}
	contact.PushName, err = d.encryptor.DecryptField(encPushName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt push name: %w", err)
	}

	return &contact, nil
}

// Cleanup operations

// CleanupOldRecords deletes messages past the retention window and
// reports how many rows went away.
func (d *Database) CleanupOldRecords(retentionDays int) (int64, error) {
	res, err := d.db.Exec(DeleteOldMessagesQuery, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old records: %w", err)
	}
	return res.RowsAffected()
}

// CleanupOldContacts drops contact cache entries not refreshed within
// the retention window.
func (d *Database) CleanupOldContacts(retentionDays int) (int64, error) {
	res, err := d.db.Exec(DeleteOldContactsQuery, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old contacts: %w", err)
	}
	return res.RowsAffected()
}
