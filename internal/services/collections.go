package services

const (
	usersCollection          = "users"
	adsCollection            = "ads"
	categoriesCollection     = "categories"
	postcodesCollection      = "postcodes"
	conversationsCollection  = "conversations"
	messagesCollection       = "messages"
	dealsCollection          = "deals"
	dealReviewsCollection    = "deal_reviews"
	adReportsCollection      = "ad_reports"
	notificationsCollection  = "notifications"
	emailTemplatesCollection = "email_templates"
)

// Unique index names surfaced in duplicate key errors.
const (
	usernameIndex   = "username_1"
	emailIndex      = "email_1"
	phoneIndex      = "phone_1"
	dealReviewIndex = "deal_id_1_rater_id_1"
	categorySlugIdx = "section_1_slug_1"
)
