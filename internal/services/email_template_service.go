package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
)

// DefaultLocale is used when a task does not name one.
const DefaultLocale = "is-IS"

// ErrTemplateNotFound is returned when neither the DB nor the defaults know a template.
var ErrTemplateNotFound = errors.New("email template not found")

// ErrTemplateInvalid marks templates that fail to parse or execute against their data.
var ErrTemplateInvalid = errors.New("email template invalid")

// Built-in templates, overridden by rows in email_templates.
var defaultEmailTemplates = map[string]models.EmailTemplate{
	TemplateWelcome: {
		TemplateID: TemplateWelcome,
		Subject:    "Welcome to {{.AppName}}, {{.Name}}",
		Body:       "Hi {{.Name}},\n\nYour account @{{.Username}} is ready. Start posting ads at {{.AppURL}}.\n",
	},
	TemplatePasswordChanged: {
		TemplateID: TemplatePasswordChanged,
		Subject:    "Your {{.AppName}} password was changed",
		Body:       "Hi {{.Name}},\n\nThe password of @{{.Username}} was just changed. If this was not you, reset it at {{.AppURL}} right away.\n",
	},
}

// IEmailTemplateService loads and renders email templates.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	SaveTemplate(ctx context.Context, t *models.EmailTemplate) error
	Render(ctx context.Context, templateID, locale string, data map[string]any) (subject, body string, err error)
}

type emailTemplateService struct {
	db *mongo.Database
}

func NewEmailTemplateService(db *mongo.Database) IEmailTemplateService {
	return &emailTemplateService{db: db}
}

// GetTemplate prefers a stored template for the locale, then the built-in default.
func (s *emailTemplateService) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	var t models.EmailTemplate
	err := s.db.Collection(emailTemplatesCollection).FindOne(ctx, bson.M{"template_id": templateID, "locale": locale}).Decode(&t)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error retrieving template %s: %w", templateID, err)
	}
	if def, ok := defaultEmailTemplates[templateID]; ok {
		def.Locale = locale
		return &def, nil
	}
	return nil, fmt.Errorf("%w: %s (locale: %s)", ErrTemplateNotFound, templateID, locale)
}

func (s *emailTemplateService) SaveTemplate(ctx context.Context, t *models.EmailTemplate) error {
	if t.Locale == "" {
		t.Locale = DefaultLocale
	}
	t.GenIDIfEmpty()
	_, err := s.db.Collection(emailTemplatesCollection).UpdateOne(ctx,
		bson.M{"template_id": t.TemplateID, "locale": t.Locale},
		bson.M{"$set": bson.M{"subject": t.Subject, "body": t.Body}, "$setOnInsert": bson.M{"_id": t.ID}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("error saving template %s: %w", t.TemplateID, err)
	}
	return nil
}

func (s *emailTemplateService) Render(ctx context.Context, templateID, locale string, data map[string]any) (string, string, error) {
	t, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return "", "", err
	}
	return RenderTemplate(t, data)
}

// RenderTemplate executes the subject and body of t against data.
// A key missing from data is an error.
func RenderTemplate(t *models.EmailTemplate, data map[string]any) (string, string, error) {
	subject, err := execute(t.TemplateID+".subject", t.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(t.TemplateID+".body", t.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrTemplateInvalid, name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: render %s: %v", ErrTemplateInvalid, name, err)
	}
	return buf.String(), nil
}
