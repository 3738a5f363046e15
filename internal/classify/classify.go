// Package classify turns ticket text and attachments into a structured
// Classification by calling an external language-model oracle, with
// validation, salvage parsing of noisy output, and a bounded retry loop.
package classify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/models"
	"github.com/fire-routing/backend/internal/normalize"
)

// ErrUnavailable reports that the oracle exhausted its retry budget.
// Callers match it with errors.Is; the concrete *UnavailableError carries
// the last underlying error.
var ErrUnavailable = errors.New("classification unavailable")

type UnavailableError struct {
	Attempts int
	Last     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("classification unavailable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Last }

// Request is one oracle invocation. ImageB64/ImageMIME are empty on the
// text-only path; ForceJSON requests a closed-schema JSON response and is
// only honored on the text-only path.
type Request struct {
	System    string
	Text      string
	ImageB64  string
	ImageMIME string
	ForceJSON bool
}

// Oracle is the external classification capability. Implementations must be
// stateless across attempts.
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

const defaultAttempts = 3

type Client struct {
	Oracle   Oracle
	Attempts int
	Logger   zerolog.Logger
}

// Classify analyzes ticket text and/or an attached image. With neither a
// usable text nor a readable image it returns a fixed low-priority result
// without calling the oracle.
func (c *Client) Classify(ctx context.Context, text, imagePath string) (models.Classification, error) {
	hasText := usableText(text)
	imageB64, imageMIME, hasImage := loadImage(imagePath)

	if !hasText && !hasImage {
		return models.Classification{
			Category:  models.CategoryConsultation,
			Sentiment: models.SentimentNeutral,
			Priority:  1,
			Language:  models.LangRU,
			Summary:   "Текст обращения отсутствует. Рекомендуется связаться с клиентом для уточнения.",
		}, nil
	}

	req := Request{System: SystemPrompt}
	if hasImage {
		req.ImageB64 = imageB64
		req.ImageMIME = imageMIME
		if hasText {
			req.Text = fmt.Sprintf("Текст обращения: %s. Проанализируй это вместе с приложенным изображением.", strings.TrimSpace(text))
		} else {
			req.Text = "Проанализируй приложенное изображение как обращение клиента."
		}
	} else {
		req.Text = strings.TrimSpace(text)
		req.ForceJSON = true
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := c.Oracle.Complete(ctx, req)
		if err != nil {
			lastErr = err
			c.Logger.Warn().Err(err).Int("attempt", attempt).Int("max", attempts).Msg("oracle call failed")
			continue
		}

		result, err := decodeResult(raw)
		if err == nil {
			return result, nil
		}

		if candidate := ExtractObject(raw, "type"); candidate != "" {
			if result, salvageErr := decodeResult(candidate); salvageErr == nil {
				return result, nil
			}
		}

		lastErr = err
		c.Logger.Warn().Err(err).Int("attempt", attempt).Int("max", attempts).Str("raw", truncate(raw, 300)).Msg("oracle returned malformed result")
	}

	return models.Classification{}, &UnavailableError{Attempts: attempts, Last: lastErr}
}

// wire shape of the oracle response; field names follow the prompt.
type rawResult struct {
	Type      string      `json:"type"`
	Sentiment string      `json:"sentiment"`
	Priority  json.Number `json:"priority"`
	Language  string      `json:"language"`
	Summary   string      `json:"summary"`
}

func decodeResult(raw string) (models.Classification, error) {
	var r rawResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &r); err != nil {
		return models.Classification{}, err
	}

	priority64, err := r.Priority.Int64()
	if err != nil {
		return models.Classification{}, fmt.Errorf("invalid priority %q: %w", r.Priority.String(), err)
	}

	result := models.Classification{
		Category:  normalize.Category(r.Type),
		Sentiment: normalize.Sentiment(r.Sentiment),
		Priority:  int(priority64),
		Language:  normalize.Language(r.Language),
		Summary:   strings.TrimSpace(r.Summary),
	}
	if err := validate(result); err != nil {
		return models.Classification{}, err
	}
	return result, nil
}

func validate(c models.Classification) error {
	if !normalize.KnownCategory(c.Category) {
		return fmt.Errorf("unknown category %q", c.Category)
	}
	if !normalize.KnownSentiment(c.Sentiment) {
		return fmt.Errorf("unknown sentiment %q", c.Sentiment)
	}
	if c.Priority < 1 || c.Priority > 10 {
		return fmt.Errorf("priority %d out of range", c.Priority)
	}
	if !normalize.KnownLanguage(c.Language) {
		return fmt.Errorf("unknown language %q", c.Language)
	}
	return nil
}

func usableText(text string) bool {
	v := strings.ToLower(strings.TrimSpace(text))
	return v != "" && v != "nan"
}

func loadImage(path string) (b64, mime string, ok bool) {
	if strings.TrimSpace(path) == "" {
		return "", "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", false
	}
	return base64.StdEncoding.EncodeToString(data), imageMIME(path), true
}

func imageMIME(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
